package devis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gardia-secu/gardia/internal/intro"
)

func TestCreateDefaultsToInstallation(t *testing.T) {
	svc, _ := newTestService(t)

	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})

	require.Equal(t, KindInstallation, d.Kind)
	require.Equal(t, float64(10), d.VATRate)
	require.Equal(t, StatusDraft, d.Status)
	require.Equal(t, AcceptancePending, d.Acceptance.Status)
	require.NotEmpty(t, d.AccessToken)
	require.Len(t, d.AccessToken, 64)
	require.Equal(t, CurrentSchemaVersion, d.SchemaVersion)
	require.Empty(t, d.Lines)
	require.Zero(t, d.Totals.TTC)
}

func TestCreateUpsellSeedsProposalLines(t *testing.T) {
	svc, _ := newTestService(t, cameraProduct())

	d := mustCreate(t, svc, CreateDevisRequest{
		Client: ClientPayload{LastName: "Durand"},
		Kind:   KindMaintenanceUpsell,
	})

	require.Equal(t, defaultUpsellTitle, d.Title)
	require.Len(t, d.Lines, 1)
	require.Zero(t, d.Lines[0].Quantity)
	require.Zero(t, d.Totals.TTC)
}

func TestCreateNormalizesFrenchPhone(t *testing.T) {
	svc, _ := newTestService(t)

	d := mustCreate(t, svc, CreateDevisRequest{
		Client: ClientPayload{LastName: "Durand", Phone: "06 12 34 56 78"},
	})

	require.Equal(t, "+33612345678", d.Client.Phone)
}

func TestAddLineDefaultsQuantityByKind(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, alarmProduct())

	install := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "A"}})
	install, err := svc.AddOrUpdateLine(ctx, install.ID, AddLineRequest{ProductID: "prod-alarm"})
	require.NoError(t, err)
	require.Equal(t, 1, install.Lines[0].Quantity)

	upsell := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "B"}, Kind: KindMaintenanceUpsell})
	upsell, err = svc.AddOrUpdateLine(ctx, upsell.ID, AddLineRequest{ProductID: "prod-alarm"})
	require.NoError(t, err)
	last := upsell.Lines[len(upsell.Lines)-1]
	require.Zero(t, last.Quantity)
}

func TestAddLineDeduplicatesByProduct(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, alarmProduct())

	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})

	d, err := svc.AddOrUpdateLine(ctx, d.ID, AddLineRequest{ProductID: "prod-alarm"})
	require.NoError(t, err)
	qty := 3
	d, err = svc.AddOrUpdateLine(ctx, d.ID, AddLineRequest{ProductID: "prod-alarm", Quantity: &qty})
	require.NoError(t, err)

	require.Len(t, d.Lines, 1)
	require.Equal(t, 3, d.Lines[0].Quantity)
	require.InDelta(t, 300, d.Totals.HT, 1e-9)
}

func TestAddLineUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})

	_, err := svc.AddOrUpdateLine(context.Background(), d.ID, AddLineRequest{ProductID: "missing"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSetLineQuantityZeroKeepsLine(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, alarmProduct())
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})
	d, err := svc.AddOrUpdateLine(ctx, d.ID, AddLineRequest{ProductID: "prod-alarm"})
	require.NoError(t, err)

	d, err = svc.SetLineQuantity(ctx, d.ID, d.Lines[0].ID, 0)
	require.NoError(t, err)

	require.Len(t, d.Lines, 1)
	require.Zero(t, d.Lines[0].Quantity)
	require.Zero(t, d.Totals.HT)

	_, err = svc.SetLineQuantity(ctx, d.ID, d.Lines[0].ID, -1)
	require.ErrorIs(t, err, ErrValidation)
}

func TestSetLinePriceRejectsInvalidNumbers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, alarmProduct())
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})
	d, err := svc.AddOrUpdateLine(ctx, d.ID, AddLineRequest{ProductID: "prod-alarm"})
	require.NoError(t, err)
	lineID := d.Lines[0].ID

	_, err = svc.SetLinePrice(ctx, d.ID, lineID, -5)
	require.ErrorIs(t, err, ErrValidation)

	d, err = svc.SetLinePrice(ctx, d.ID, lineID, 149.90)
	require.NoError(t, err)
	require.InDelta(t, 149.90, d.Lines[0].UnitPriceHT, 1e-9)
	require.InDelta(t, 149.90, d.Totals.HT, 1e-9)
}

func TestRemoveLineDropsClientOverride(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, alarmProduct())
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})
	d, err := svc.AddOrUpdateLine(ctx, d.ID, AddLineRequest{ProductID: "prod-alarm"})
	require.NoError(t, err)
	lineID := d.Lines[0].ID

	require.NoError(t, repo.UpdateCustomQuantities(ctx, d.ID, map[string]int{lineID: 4}))

	d, err = svc.RemoveLine(ctx, d.ID, lineID)
	require.NoError(t, err)
	require.Empty(t, d.Lines)
	require.NotContains(t, d.CustomQuantities, lineID)

	_, err = svc.RemoveLine(ctx, d.ID, lineID)
	require.ErrorIs(t, err, ErrLineNotFound)
}

func TestSetVATRateRecomputesAllLines(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, alarmProduct())
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})
	qty := 2
	d, err := svc.AddOrUpdateLine(ctx, d.ID, AddLineRequest{ProductID: "prod-alarm", Quantity: &qty})
	require.NoError(t, err)

	d, err = svc.SetVATRate(ctx, d.ID, 20)
	require.NoError(t, err)

	require.Equal(t, float64(20), d.VATRate)
	require.Equal(t, float64(20), d.Lines[0].VATRate)
	require.InDelta(t, 240, d.Totals.TTC, 1e-9)
	require.InDelta(t, 96, d.Totals.Deposit, 1e-9)

	_, err = svc.SetVATRate(ctx, d.ID, 5.5)
	require.ErrorIs(t, err, ErrValidation)
}

func TestSwitchKindBulkEffect(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, alarmProduct(), cameraProduct())
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})

	d, err := svc.AddOrUpdateLine(ctx, d.ID, AddLineRequest{ProductID: "prod-alarm"})
	require.NoError(t, err)
	qty := 3
	d, err = svc.AddOrUpdateLine(ctx, d.ID, AddLineRequest{ProductID: "prod-camera", Quantity: &qty})
	require.NoError(t, err)

	// To maintenance-upsell: everything becomes a proposal.
	d, err = svc.SwitchKind(ctx, d.ID, KindMaintenanceUpsell)
	require.NoError(t, err)
	for _, line := range d.Lines {
		require.Zero(t, line.Quantity)
	}
	require.Zero(t, d.Totals.TTC)

	// One line gets a positive quantity again before switching back.
	d, err = svc.SetLineQuantity(ctx, d.ID, d.Lines[1].ID, 2)
	require.NoError(t, err)

	// Back to installation: only zero-quantity lines are restored to 1.
	d, err = svc.SwitchKind(ctx, d.ID, KindInstallation)
	require.NoError(t, err)
	require.Equal(t, 1, d.Lines[0].Quantity)
	require.Equal(t, 2, d.Lines[1].Quantity)
}

func TestAccessTokenStableAcrossMutations(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, alarmProduct())
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})
	token := d.AccessToken

	d, err := svc.AddOrUpdateLine(ctx, d.ID, AddLineRequest{ProductID: "prod-alarm"})
	require.NoError(t, err)
	d, err = svc.SetVATRate(ctx, d.ID, 20)
	require.NoError(t, err)

	require.Equal(t, token, d.AccessToken)

	loaded, err := svc.GetByToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, d.ID, loaded.ID)
}

func TestPaymentLinkInvalidatedByTotalsChange(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, alarmProduct())
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})
	d, err := svc.AddOrUpdateLine(ctx, d.ID, AddLineRequest{ProductID: "prod-alarm"})
	require.NoError(t, err)

	d, err = svc.GeneratePaymentLink(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, d.PaymentLinkToken)
	token := *d.PaymentLinkToken

	// Regenerating without a totals change reuses the token.
	d, err = svc.GeneratePaymentLink(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, token, *d.PaymentLinkToken)

	// A totals-affecting mutation clears it.
	d, err = svc.SetLineQuantity(ctx, d.ID, d.Lines[0].ID, 5)
	require.NoError(t, err)
	require.Nil(t, d.PaymentLinkToken)
}

func TestPaymentLinkSurvivesNeutralMutation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, alarmProduct())
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})
	d, err := svc.AddOrUpdateLine(ctx, d.ID, AddLineRequest{ProductID: "prod-alarm"})
	require.NoError(t, err)
	d, err = svc.GeneratePaymentLink(ctx, d.ID)
	require.NoError(t, err)

	title := "Nouveau titre"
	d, err = svc.Update(ctx, d.ID, UpdateDevisRequest{Title: &title})
	require.NoError(t, err)
	require.NotNil(t, d.PaymentLinkToken)
}

func TestUpdateVersionPrecheck(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})

	stale := d.Version - 1
	_, err := svc.Update(ctx, d.ID, UpdateDevisRequest{Version: &stale})
	require.ErrorIs(t, err, ErrVersionConflict)

	title := "ok"
	_, err = svc.Update(ctx, d.ID, UpdateDevisRequest{Title: &title, Version: &d.Version})
	require.NoError(t, err)
}

func TestClientWriteBumpsVersionAndFailsStaleStaffSave(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})

	staleVersion := d.Version
	require.NoError(t, repo.UpdateCustomQuantities(ctx, d.ID, map[string]int{"line-x": 3}))

	// A staff save loaded before the client adjustment must lose the race,
	// otherwise it would rewrite the payment link token nulled by the client
	// write.
	title := "mise à jour obsolète"
	_, err := svc.Update(ctx, d.ID, UpdateDevisRequest{Title: &title, Version: &staleVersion})
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestManualIntroEditBlocksRegeneration(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, alarmProduct())
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})
	d, err := svc.AddOrUpdateLine(ctx, d.ID, AddLineRequest{ProductID: "prod-alarm"})
	require.NoError(t, err)

	text := "Introduction rédigée à la main."
	d, err = svc.Update(ctx, d.ID, UpdateDevisRequest{IntroText: &text})
	require.NoError(t, err)
	require.Equal(t, IntroManual, d.Intro.Mode)
	require.NotNil(t, d.Intro.EditedAt)

	_, err = svc.GenerateIntro(ctx, d.ID, false)
	require.ErrorIs(t, err, ErrIntroManual)
}

func TestGenerateIntroFallsBackOnGeneratorError(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, alarmProduct())
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})

	// No lines yet: refused.
	_, err := svc.GenerateIntro(ctx, d.ID, false)
	require.ErrorIs(t, err, ErrValidation)

	d, err = svc.AddOrUpdateLine(ctx, d.ID, AddLineRequest{ProductID: "prod-alarm"})
	require.NoError(t, err)

	d, err = svc.GenerateIntro(ctx, d.ID, false)
	require.NoError(t, err)
	require.Equal(t, IntroAuto, d.Intro.Mode)
	require.Equal(t, intro.FallbackText, d.Intro.Text)
	require.NotNil(t, d.Intro.GeneratedAt)
}

func TestSendRequiresClientEmail(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})

	_, err := svc.Send(ctx, d.ID)
	require.ErrorIs(t, err, ErrValidation)

	email := "client@example.fr"
	d, err = svc.Update(ctx, d.ID, UpdateDevisRequest{Client: &ClientPayload{LastName: "Durand", Email: email}})
	require.NoError(t, err)

	d, err = svc.Send(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, d.Status)
}

func TestRejectTransition(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})

	d, err := svc.Reject(ctx, d.ID, "trop cher")
	require.NoError(t, err)
	require.Equal(t, AcceptanceRejected, d.Acceptance.Status)
	require.Equal(t, "trop cher", d.Acceptance.RejectReason)
	require.NotNil(t, d.Acceptance.RejectedAt)

	// Rejecting twice is a no-op.
	again, err := svc.Reject(ctx, d.ID, "encore")
	require.NoError(t, err)
	require.Equal(t, "trop cher", again.Acceptance.RejectReason)

	// A rejected quote refuses further staff mutations.
	_, err = svc.SetVATRate(ctx, d.ID, 20)
	require.ErrorIs(t, err, ErrLocked)
}

func TestStoredTotalsIgnoreClientOverrides(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t, alarmProduct())
	d := mustCreate(t, svc, CreateDevisRequest{Client: ClientPayload{LastName: "Durand"}})
	d, err := svc.AddOrUpdateLine(ctx, d.ID, AddLineRequest{ProductID: "prod-alarm"})
	require.NoError(t, err)
	lineID := d.Lines[0].ID

	require.NoError(t, repo.UpdateCustomQuantities(ctx, d.ID, map[string]int{lineID: 10}))

	// A staff save recomputes from staff quantities only.
	title := "Titre"
	d, err = svc.Update(ctx, d.ID, UpdateDevisRequest{Title: &title})
	require.NoError(t, err)
	require.InDelta(t, 100, d.Totals.HT, 1e-9)
	require.Equal(t, 1, d.Lines[0].Quantity)

	// The override is still there for the client-facing computation.
	require.Equal(t, 10, d.EffectiveQuantity(d.Lines[0]))
	require.InDelta(t, 1000, d.DisplayTotals(nil).HT, 1e-9)
}

func TestGetByTokenMissIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetByToken(context.Background(), "deadbeef")
	require.ErrorIs(t, err, ErrNotFound)
}
