package devis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the quote aggregate. Staff saves are guarded by a
// version compare-and-swap, acceptance by a conditional status write, and
// client-editable fields by their own scoped updates.
type Repository interface {
	Create(ctx context.Context, d *Devis) error
	Update(ctx context.Context, d *Devis) error
	Get(ctx context.Context, id string) (*Devis, error)
	GetByToken(ctx context.Context, token string) (*Devis, error)
	GetByPaymentToken(ctx context.Context, token string) (*Devis, error)
	List(ctx context.Context) ([]Devis, error)
	Delete(ctx context.Context, id string) error

	UpdateCustomQuantities(ctx context.Context, id string, overrides map[string]int) error
	UpdateSelectedAddOns(ctx context.Context, id string, selections map[string]int) error

	SetPaymentLinkToken(ctx context.Context, id, token string) error

	Accept(ctx context.Context, id string, record AcceptanceRecord) (bool, error)
	Reject(ctx context.Context, id string, at time.Time, reason string) (bool, error)

	SetERPResult(ctx context.Context, id, number string, erpDevisID int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const devisColumns = `
	id, devis_number, client, title, kind, vat_rate, lines, totals,
	observations, options, status, access_token, payment_link_token,
	accepted_status, accepted_at, signatory_name, terms_accepted,
	signature_path, accepted_ip, rejected_at, reject_reason,
	custom_quantities, selected_add_ons, accepted_add_ons, intro,
	erp_devis_id, schema_version, version, created_at, updated_at`

func (r *repository) Create(ctx context.Context, d *Devis) error {
	clientJSON, linesJSON, totalsJSON, optionsJSON, introJSON, err := marshalAggregate(d)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO devis (
			id, devis_number, client, title, kind, vat_rate, lines, totals,
			observations, options, status, access_token,
			accepted_status, intro, schema_version, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,1,$16,$17)`,
		d.ID, d.Number, clientJSON, d.Title, string(d.Kind), d.VATRate, linesJSON, totalsJSON,
		d.Observations, optionsJSON, string(d.Status), d.AccessToken,
		string(d.Acceptance.Status), introJSON, d.SchemaVersion, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert devis: %w", err)
	}
	d.Version = 1
	return nil
}

// Update writes the staff-owned fields with a compare-and-swap on version.
// Client-owned fields are absent so a staff save never clobbers them.
func (r *repository) Update(ctx context.Context, d *Devis) error {
	clientJSON, linesJSON, totalsJSON, optionsJSON, introJSON, err := marshalAggregate(d)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE devis SET
			devis_number = $1, client = $2, title = $3, kind = $4, vat_rate = $5,
			lines = $6, totals = $7, observations = $8, options = $9, status = $10,
			payment_link_token = $11, intro = $12,
			version = version + 1, updated_at = $13
		WHERE id = $14 AND version = $15`,
		d.Number, clientJSON, d.Title, string(d.Kind), d.VATRate,
		linesJSON, totalsJSON, d.Observations, optionsJSON, string(d.Status),
		d.PaymentLinkToken, introJSON,
		d.UpdatedAt, d.ID, d.Version,
	)
	if err != nil {
		return fmt.Errorf("update devis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	d.Version++
	return nil
}

func (r *repository) Get(ctx context.Context, id string) (*Devis, error) {
	return r.getBy(ctx, "id", id)
}

func (r *repository) GetByToken(ctx context.Context, token string) (*Devis, error) {
	return r.getBy(ctx, "access_token", token)
}

func (r *repository) GetByPaymentToken(ctx context.Context, token string) (*Devis, error) {
	return r.getBy(ctx, "payment_link_token", token)
}

func (r *repository) getBy(ctx context.Context, column, value string) (*Devis, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+devisColumns+` FROM devis WHERE `+column+` = $1`, value)
	d, err := scanDevis(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *repository) List(ctx context.Context) ([]Devis, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+devisColumns+` FROM devis ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []Devis
	for rows.Next() {
		d, err := scanDevis(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, *d)
	}
	return all, rows.Err()
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM devis WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete devis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdateCustomQuantities(ctx context.Context, id string, overrides map[string]int) error {
	return r.updateClientField(ctx, id, "custom_quantities", overrides)
}

func (r *repository) UpdateSelectedAddOns(ctx context.Context, id string, selections map[string]int) error {
	return r.updateClientField(ctx, id, "selected_add_ons", selections)
}

func (r *repository) updateClientField(ctx context.Context, id, column string, value map[string]int) error {
	var payload any
	if len(value) > 0 {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", column, err)
		}
		payload = raw
	}
	// The version bump makes a racing staff save fail its compare-and-swap.
	tag, err := r.pool.Exec(ctx,
		`UPDATE devis SET `+column+` = $1, payment_link_token = NULL,
		 version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND accepted_status = 'pending'`,
		payload, id,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLocked
	}
	return nil
}

func (r *repository) SetPaymentLinkToken(ctx context.Context, id, token string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE devis SET payment_link_token = $1, updated_at = NOW() WHERE id = $2`,
		token, id,
	)
	if err != nil {
		return fmt.Errorf("set payment link token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Accept(ctx context.Context, id string, record AcceptanceRecord) (bool, error) {
	totalsJSON, err := json.Marshal(record.Totals)
	if err != nil {
		return false, fmt.Errorf("marshal totals: %w", err)
	}
	addOnsJSON, err := json.Marshal(record.AddOns)
	if err != nil {
		return false, fmt.Errorf("marshal accepted add-ons: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE devis SET
			accepted_status = 'accepted', accepted_at = $1, signatory_name = $2,
			terms_accepted = $3, signature_path = $4, accepted_ip = $5,
			accepted_add_ons = $6, totals = $7, status = 'signed',
			version = version + 1, updated_at = NOW()
		WHERE id = $8 AND accepted_status = 'pending'`,
		record.At, record.SignatoryName, record.TermsAccepted, record.SignaturePath,
		record.ClientIP, addOnsJSON, totalsJSON, id,
	)
	if err != nil {
		return false, fmt.Errorf("accept devis: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) Reject(ctx context.Context, id string, at time.Time, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE devis SET
			accepted_status = 'rejected', rejected_at = $1, reject_reason = $2,
			version = version + 1, updated_at = NOW()
		WHERE id = $3 AND accepted_status = 'pending'`,
		at, reason, id,
	)
	if err != nil {
		return false, fmt.Errorf("reject devis: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) SetERPResult(ctx context.Context, id, number string, erpDevisID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE devis SET devis_number = $1, erp_devis_id = $2, updated_at = NOW() WHERE id = $3`,
		number, erpDevisID, id,
	)
	if err != nil {
		return fmt.Errorf("set erp result: %w", err)
	}
	return nil
}

func marshalAggregate(d *Devis) (client, lines, totals, options, intro []byte, err error) {
	if client, err = json.Marshal(d.Client); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal client: %w", err)
	}
	if lines, err = json.Marshal(d.Lines); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal lines: %w", err)
	}
	if totals, err = json.Marshal(d.Totals); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal totals: %w", err)
	}
	if options, err = json.Marshal(d.Options); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal options: %w", err)
	}
	if intro, err = json.Marshal(d.Intro); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal intro: %w", err)
	}
	return client, lines, totals, options, intro, nil
}

func scanDevis(row pgx.Row) (*Devis, error) {
	var (
		d                 Devis
		kind, status      string
		acceptedStatus    string
		clientJSON        []byte
		linesJSON         []byte
		totalsJSON        []byte
		optionsJSON       []byte
		introJSON         []byte
		customJSON        []byte
		selectedJSON      []byte
		acceptedJSON      []byte
		number            pgtype.Text
		paymentToken      pgtype.Text
		acceptedAt        pgtype.Timestamptz
		signatoryName     pgtype.Text
		signaturePath     pgtype.Text
		acceptedIP        pgtype.Text
		rejectedAt        pgtype.Timestamptz
		rejectReason      pgtype.Text
		erpDevisID        pgtype.Int8
	)

	err := row.Scan(
		&d.ID, &number, &clientJSON, &d.Title, &kind, &d.VATRate, &linesJSON, &totalsJSON,
		&d.Observations, &optionsJSON, &status, &d.AccessToken, &paymentToken,
		&acceptedStatus, &acceptedAt, &signatoryName, &d.Acceptance.TermsAccepted,
		&signaturePath, &acceptedIP, &rejectedAt, &rejectReason,
		&customJSON, &selectedJSON, &acceptedJSON, &introJSON,
		&erpDevisID, &d.SchemaVersion, &d.Version, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if d.SchemaVersion != CurrentSchemaVersion {
		return nil, fmt.Errorf("devis %s: unsupported schema version %d", d.ID, d.SchemaVersion)
	}

	d.Kind = Kind(kind)
	d.Status = Status(status)
	d.Acceptance.Status = AcceptanceStatus(acceptedStatus)
	if number.Valid {
		d.Number = number.String
	}
	if paymentToken.Valid {
		d.PaymentLinkToken = &paymentToken.String
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		d.Acceptance.At = &t
	}
	if signatoryName.Valid {
		d.Acceptance.SignatoryName = signatoryName.String
	}
	if signaturePath.Valid {
		d.Acceptance.SignaturePath = signaturePath.String
	}
	if acceptedIP.Valid {
		d.Acceptance.ClientIP = acceptedIP.String
	}
	if rejectedAt.Valid {
		t := rejectedAt.Time
		d.Acceptance.RejectedAt = &t
	}
	if rejectReason.Valid {
		d.Acceptance.RejectReason = rejectReason.String
	}
	if erpDevisID.Valid {
		d.ERPDevisID = &erpDevisID.Int64
	}

	if err := unmarshalInto(clientJSON, &d.Client, "client"); err != nil {
		return nil, err
	}
	if err := unmarshalInto(linesJSON, &d.Lines, "lines"); err != nil {
		return nil, err
	}
	if err := unmarshalInto(totalsJSON, &d.Totals, "totals"); err != nil {
		return nil, err
	}
	if err := unmarshalInto(optionsJSON, &d.Options, "options"); err != nil {
		return nil, err
	}
	if err := unmarshalInto(introJSON, &d.Intro, "intro"); err != nil {
		return nil, err
	}
	if err := unmarshalInto(customJSON, &d.CustomQuantities, "custom_quantities"); err != nil {
		return nil, err
	}
	if err := unmarshalInto(selectedJSON, &d.SelectedAddOns, "selected_add_ons"); err != nil {
		return nil, err
	}
	if err := unmarshalInto(acceptedJSON, &d.AcceptedAddOns, "accepted_add_ons"); err != nil {
		return nil, err
	}

	return &d, nil
}

func unmarshalInto(raw []byte, target any, field string) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode devis %s: %w", field, err)
	}
	return nil
}
