package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"slotengine/internal/domain"
	"slotengine/internal/store"
)

type Repo struct {
	schedulingTx
	db *bun.DB
}

var _ store.Store = (*Repo)(nil)

func NewRepo(db *bun.DB) *Repo {
	return &Repo{schedulingTx: schedulingTx{db: db}, db: db}
}

// schedulingTx runs against either the pool or an open transaction.
type schedulingTx struct {
	db bun.IDB
}

func (r *Repo) InProviderTransaction(ctx context.Context, providerID string, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProvider(ctx, tx, providerID); err != nil {
			return err
		}
		return fn(ctx, schedulingTx{db: tx})
	})
}

func lockProvider(ctx context.Context, tx bun.Tx, providerID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "provider:"+providerID).Exec(ctx)
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

const bookableSlot = "is_available AND NOT is_reserved AND NOT is_manually_disabled AND slot_type = 'normal'"

func (r schedulingTx) InsertSlots(ctx context.Context, slots []domain.Slot) (int, error) {
	if len(slots) == 0 {
		return 0, nil
	}
	rows := make([]domain.Slot, len(slots))
	copy(rows, slots)
	for i := range rows {
		rows[i].Normalize()
	}

	res, err := r.db.NewInsert().
		Model(&rows).
		On("CONFLICT (provider_id, listing_id, slot_start) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return affected(res)
}

func (r schedulingTx) ListSlots(ctx context.Context, f store.SlotFilter) ([]domain.Slot, error) {
	var rows []domain.Slot
	q := r.db.NewSelect().Model(&rows)
	if f.ProviderID != "" {
		q = q.Where("provider_id = ?", f.ProviderID)
	}
	if f.ListingID != "" {
		q = q.Where("listing_id = ?", f.ListingID)
	}
	if !f.From.IsZero() {
		q = q.Where("slot_start >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("slot_start < ?", f.To)
	}
	if err := q.OrderExpr("slot_start ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r schedulingTx) GetSlot(ctx context.Context, id uuid.UUID) (domain.Slot, error) {
	var slot domain.Slot
	err := r.db.NewSelect().Model(&slot).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Slot{}, notFound(err)
	}
	return slot, nil
}

func (r schedulingTx) ReserveSlots(ctx context.Context, ids []uuid.UUID, appointmentID uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.NewUpdate().
		Model((*domain.Slot)(nil)).
		Set("is_reserved = TRUE").
		Set("is_available = FALSE").
		Set("appointment_id = ?", appointmentID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id IN (?)", bun.In(ids)).
		Where(bookableSlot).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return affected(res)
}

func (r schedulingTx) ReleaseSlots(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.Slot)(nil)).
		Set("is_reserved = FALSE").
		Set("appointment_id = NULL").
		Set("is_available = (NOT is_manually_disabled AND slot_type = 'normal')").
		Set("updated_at = ?", time.Now().UTC()).
		Where("appointment_id = ?", appointmentID).
		Where("is_reserved").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return affected(res)
}

func (r schedulingTx) BlockSlots(ctx context.Context, appointmentID uuid.UUID, kind domain.SlotType) (int, error) {
	if !kind.Blocking() {
		return 0, errors.New("block requires a blocking slot type")
	}
	res, err := r.db.NewUpdate().
		Model((*domain.Slot)(nil)).
		Set("slot_type = ?", kind.String()).
		Set("is_reserved = FALSE").
		Set("is_available = FALSE").
		Set("updated_at = ?", time.Now().UTC()).
		Where("appointment_id = ?", appointmentID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return affected(res)
}

func (r schedulingTx) SetSlotDisabled(ctx context.Context, id uuid.UUID, disabled bool) (domain.Slot, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.Slot)(nil)).
		Set("is_manually_disabled = ?", disabled).
		Set("is_available = (NOT ? AND NOT is_reserved AND slot_type = 'normal')", disabled).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return domain.Slot{}, err
	}
	n, err := affected(res)
	if err != nil {
		return domain.Slot{}, err
	}
	if n == 0 {
		return domain.Slot{}, store.ErrNotFound
	}
	return r.GetSlot(ctx, id)
}

func (r schedulingTx) SetListingSlotsDisabled(ctx context.Context, providerID, listingID string, from time.Time, disabled bool) (int, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.Slot)(nil)).
		Set("is_manually_disabled = ?", disabled).
		Set("is_available = (NOT ? AND NOT is_reserved AND slot_type = 'normal')", disabled).
		Set("updated_at = ?", time.Now().UTC()).
		Where("provider_id = ?", providerID).
		Where("listing_id = ?", listingID).
		Where("slot_start >= ?", from).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return affected(res)
}

func (r schedulingTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, err
	}
	return m, nil
}

func (r schedulingTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	err := r.db.NewSelect().Model(&appt).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Appointment{}, notFound(err)
	}
	return appt, nil
}

func (r schedulingTx) ListAppointments(ctx context.Context, f store.AppointmentFilter) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().Model(&rows)
	if f.ProviderID != "" {
		q = q.Where("provider_id = ?", f.ProviderID)
	}
	if f.ListingID != "" {
		q = q.Where("listing_id = ?", f.ListingID)
	}
	if f.ClientID != "" {
		q = q.Where("client_id = ?", f.ClientID)
	}
	if f.RuleID != nil {
		q = q.Where("rule_id = ?", *f.RuleID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(f.Statuses))
	}
	if !f.StartFrom.IsZero() {
		q = q.Where("start_time >= ?", f.StartFrom)
	}
	if !f.StartTo.IsZero() {
		q = q.Where("start_time < ?", f.StartTo)
	}
	if err := q.OrderExpr("start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r schedulingTx) FindActiveAppointment(ctx context.Context, key store.InstanceKey) (domain.Appointment, bool, error) {
	var appt domain.Appointment
	err := r.db.NewSelect().
		Model(&appt).
		Where("provider_id = ?", key.ProviderID).
		Where("client_id = ?", key.ClientID).
		Where("listing_id = ?", key.ListingID).
		Where("start_time = ?", key.StartTime).
		Where("status IN (?)", bun.In([]domain.AppointmentStatus{domain.StatusPending, domain.StatusConfirmed})).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, false, nil
		}
		return domain.Appointment{}, false, err
	}
	return appt, true, nil
}

func (r schedulingTx) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to domain.AppointmentStatus) (domain.Appointment, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	n, err := affected(res)
	if err != nil {
		return domain.Appointment{}, err
	}
	if n == 0 {
		if _, err := r.GetAppointment(ctx, id); err != nil {
			return domain.Appointment{}, err
		}
		return domain.Appointment{}, store.ErrConflict
	}
	return r.GetAppointment(ctx, id)
}

func (r schedulingTx) ClearRecurrence(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("recurrence = ?", domain.RecurrenceNone).
		Set("rule_id = NULL").
		Set("recurrence_group_id = NULL").
		Set("is_recurring_instance = FALSE").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r schedulingTx) CreateRule(ctx context.Context, rule domain.RecurringRule) (domain.RecurringRule, error) {
	m := rule
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.RecurringRule{}, store.ErrConflict
		}
		return domain.RecurringRule{}, err
	}
	return m, nil
}

func (r schedulingTx) GetRule(ctx context.Context, id uuid.UUID) (domain.RecurringRule, error) {
	var rule domain.RecurringRule
	err := r.db.NewSelect().Model(&rule).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return domain.RecurringRule{}, notFound(err)
	}
	return rule, nil
}

func (r schedulingTx) ListRules(ctx context.Context, activeOnly bool) ([]domain.RecurringRule, error) {
	var rows []domain.RecurringRule
	q := r.db.NewSelect().Model(&rows)
	if activeOnly {
		q = q.Where("is_active")
	}
	if err := q.OrderExpr("created_at ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r schedulingTx) DeactivateRule(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewUpdate().
		Model((*domain.RecurringRule)(nil)).
		Set("is_active = FALSE").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r schedulingTx) DeleteRule(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.RecurringRule)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r schedulingTx) ListPreferences(ctx context.Context, providerID, listingID string) ([]domain.SlotPreference, error) {
	var rows []domain.SlotPreference
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("listing_id = ?", listingID).
		OrderExpr("slot_pattern ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r schedulingTx) UpsertPreference(ctx context.Context, pref domain.SlotPreference) error {
	m := pref
	_, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (provider_id, listing_id, slot_pattern) DO UPDATE").
		Set("is_manually_disabled = EXCLUDED.is_manually_disabled").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r schedulingTx) ReplacePreferences(ctx context.Context, providerID, listingID string, prefs []domain.SlotPreference) error {
	_, err := r.db.NewDelete().
		Model((*domain.SlotPreference)(nil)).
		Where("provider_id = ?", providerID).
		Where("listing_id = ?", listingID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if len(prefs) == 0 {
		return nil
	}
	rows := make([]domain.SlotPreference, len(prefs))
	copy(rows, prefs)
	_, err = r.db.NewInsert().Model(&rows).Exec(ctx)
	return err
}

func (r schedulingTx) ListWindows(ctx context.Context, providerID, listingID string) ([]domain.AvailabilityWindow, error) {
	var rows []domain.AvailabilityWindow
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("listing_id IN (?)", bun.In([]string{listingID, ""})).
		OrderExpr("day_of_week ASC, start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r schedulingTx) ReplaceWindows(ctx context.Context, providerID, listingID string, windows []domain.AvailabilityWindow) error {
	_, err := r.db.NewDelete().
		Model((*domain.AvailabilityWindow)(nil)).
		Where("provider_id = ?", providerID).
		Where("listing_id = ?", listingID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if len(windows) == 0 {
		return nil
	}
	rows := make([]domain.AvailabilityWindow, len(windows))
	copy(rows, windows)
	_, err = r.db.NewInsert().Model(&rows).Exec(ctx)
	return err
}

func (r schedulingTx) ListListings(ctx context.Context) ([]store.ListingRef, error) {
	var refs []store.ListingRef
	err := r.db.NewRaw(`
		SELECT provider_id, listing_id FROM availability_windows WHERE listing_id <> '' AND is_active
		UNION
		SELECT DISTINCT provider_id, listing_id FROM slots
		ORDER BY provider_id, listing_id
	`).Scan(ctx, &refs)
	if err != nil {
		return nil, err
	}
	return refs, nil
}
