// Package service holds the booking ledger: it validates a booking
// request, claims seats, prices the trip, takes the wallet share and
// persists the ticket, and reverses all of that on cancellation.  The
// store offers no multi-entity transaction, so every side effect that a
// later failure strands is undone by a compensating action.
package service

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "strings"
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/bus-seat-booking/internal/fare"
    "github.com/iliyamo/bus-seat-booking/internal/metrics"
    "github.com/iliyamo/bus-seat-booking/internal/model"
    "github.com/iliyamo/bus-seat-booking/internal/queue"
    "github.com/iliyamo/bus-seat-booking/internal/refund"
)

// TripReader loads trips from the administrative catalogue.
type TripReader interface {
    GetByID(ctx context.Context, id uint64) (*model.Trip, error)
}

// SeatGuard claims and releases seat labels on a trip.
type SeatGuard interface {
    Claim(ctx context.Context, tripID uint64, labels []string) error
    Release(ctx context.Context, tripID uint64, labels []string) error
}

// BookingStore persists bookings.  Create returns model.ErrDuplicatePNR on
// a reference collision; MarkCancelled returns model.ErrAlreadyCancelled
// when the booking is no longer booked.
type BookingStore interface {
    Create(ctx context.Context, b *model.Booking) error
    GetByID(ctx context.Context, id uint64) (*model.Booking, error)
    GetByPNR(ctx context.Context, pnr string) (*model.Booking, error)
    ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]*model.Booking, error)
    MarkCancelled(ctx context.Context, id uint64, at time.Time, percent int, amount model.Money) error
}

// Wallet is the wallet ledger.  Movements carry an idempotency key.
type Wallet interface {
    Balance(ctx context.Context, userID uint64) (model.Money, error)
    Debit(ctx context.Context, userID uint64, amount model.Money, key string) (model.Money, error)
    Credit(ctx context.Context, userID uint64, amount model.Money, kind, key string) (model.Money, error)
    Reverse(ctx context.Context, userID uint64, pnr string) (model.Money, error)
}

// Notifier accepts booking events for fire-and-forget delivery.
type Notifier interface {
    Notify(ev queue.BookingEvent)
}

// Options tunes timeouts and retries.
//
// Fields:
//  OpTimeout           – bound on each store call.
//  CompensationTimeout – budget for undoing side effects after a failure;
//                        runs detached from the request context.
//  Attempts            – tries for transient store errors and for
//                        compensating actions.
//  Backoff             – base delay between tries, doubled each time.
type Options struct {
    OpTimeout           time.Duration
    CompensationTimeout time.Duration
    Attempts            int
    Backoff             time.Duration
}

// BookingService is the booking ledger.
type BookingService struct {
    trips    TripReader
    guard    SeatGuard
    bookings BookingStore
    wallet   Wallet
    fares    *fare.Calculator
    notifier Notifier
    opts     Options
    logger   *slog.Logger

    now    func() time.Time
    newPNR func(time.Time) (string, error)
    sleep  func(context.Context, time.Duration) error
}

// NewBookingService wires the ledger.  notifier may be nil.
func NewBookingService(trips TripReader, guard SeatGuard, bookings BookingStore, wallet Wallet, fares *fare.Calculator, notifier Notifier, opts Options, logger *slog.Logger) *BookingService {
    if opts.OpTimeout <= 0 {
        opts.OpTimeout = 3 * time.Second
    }
    if opts.CompensationTimeout <= 0 {
        opts.CompensationTimeout = 15 * time.Second
    }
    if opts.Attempts <= 0 {
        opts.Attempts = 3
    }
    if opts.Backoff <= 0 {
        opts.Backoff = 50 * time.Millisecond
    }
    if logger == nil {
        logger = slog.Default()
    }
    return &BookingService{
        trips: trips, guard: guard, bookings: bookings, wallet: wallet,
        fares: fares, notifier: notifier, opts: opts, logger: logger,
        now:    func() time.Time { return time.Now().UTC() },
        newPNR: NewPNR,
        sleep:  sleepCtx,
    }
}

// CreateRequest is the create-booking input.  Passenger seat labels may be
// left blank, in which case passengers take Seats in order.
type CreateRequest struct {
    TripID         uint64            `json:"trip_id"`
    Seats          []string          `json:"seats"`
    Passengers     []model.Passenger `json:"passengers"`
    CouponCode     string            `json:"coupon_code"`
    UseWallet      bool              `json:"use_wallet"`
    PaymentOrderID string            `json:"payment_order_id"`
}

// CancelResult is returned by Cancel.
type CancelResult struct {
    Booking       *model.Booking
    RefundPercent int
    RefundAmount  model.Money
    WalletBalance model.Money
}

const maxSeatLabelLen = 16

// validate checks the request shape and returns the trimmed seat labels
// and the passengers with their seat assigned.  Errors name the first
// offending field.
func validate(req CreateRequest) ([]string, []model.Passenger, error) {
    if req.TripID == 0 {
        return nil, nil, model.ValidationError{Field: "trip_id", Msg: "is required"}
    }
    if len(req.Seats) == 0 {
        return nil, nil, model.ValidationError{Field: "seats", Msg: "at least one seat is required"}
    }
    if len(req.Seats) > model.MaxSeatsPerBooking {
        return nil, nil, model.ValidationError{Field: "seats", Msg: fmt.Sprintf("at most %d seats per booking", model.MaxSeatsPerBooking)}
    }
    seats := make([]string, len(req.Seats))
    seen := make(map[string]bool, len(req.Seats))
    for i, s := range req.Seats {
        s = strings.TrimSpace(s)
        field := fmt.Sprintf("seats[%d]", i)
        switch {
        case s == "":
            return nil, nil, model.ValidationError{Field: field, Msg: "must not be blank"}
        case len(s) > maxSeatLabelLen:
            return nil, nil, model.ValidationError{Field: field, Msg: "is too long"}
        case seen[s]:
            return nil, nil, model.ValidationError{Field: field, Msg: "duplicate seat " + s}
        }
        seen[s] = true
        seats[i] = s
    }
    if len(req.Passengers) != len(seats) {
        return nil, nil, model.ValidationError{Field: "passengers", Msg: fmt.Sprintf("expected %d passengers, got %d", len(seats), len(req.Passengers))}
    }
    passengers := make([]model.Passenger, len(req.Passengers))
    assigned := make(map[string]bool, len(seats))
    for i, p := range req.Passengers {
        p.Name = strings.TrimSpace(p.Name)
        p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
        p.SeatLabel = strings.TrimSpace(p.SeatLabel)
        if p.Name == "" {
            return nil, nil, model.ValidationError{Field: fmt.Sprintf("passengers[%d].name", i), Msg: "is required"}
        }
        if p.Age <= 0 {
            return nil, nil, model.ValidationError{Field: fmt.Sprintf("passengers[%d].age", i), Msg: "must be positive"}
        }
        switch p.Gender {
        case model.GenderMale, model.GenderFemale, model.GenderOther:
        default:
            return nil, nil, model.ValidationError{Field: fmt.Sprintf("passengers[%d].gender", i), Msg: "must be male, female or other"}
        }
        passengers[i] = p
    }
    // Either every passenger names a seat or none does.
    named := 0
    for _, p := range passengers {
        if p.SeatLabel != "" {
            named++
        }
    }
    switch named {
    case 0:
        for i := range passengers {
            passengers[i].SeatLabel = seats[i]
        }
    case len(passengers):
        for i, p := range passengers {
            field := fmt.Sprintf("passengers[%d].seat_number", i)
            if !seen[p.SeatLabel] {
                return nil, nil, model.ValidationError{Field: field, Msg: "seat " + p.SeatLabel + " is not in the requested seats"}
            }
            if assigned[p.SeatLabel] {
                return nil, nil, model.ValidationError{Field: field, Msg: "seat " + p.SeatLabel + " assigned twice"}
            }
            assigned[p.SeatLabel] = true
        }
    default:
        return nil, nil, model.ValidationError{Field: "passengers", Msg: "assign a seat to every passenger or to none"}
    }
    return seats, passengers, nil
}

// Create books seats for userID.  Validation, trip and seat conflicts are
// reported before any side effect.  Once seats are claimed, a failure to
// take the wallet share or persist the booking releases the seats and
// reverses the debit before the error is returned; if that compensation
// itself fails the result is a model.FatalInconsistencyError.
func (s *BookingService) Create(ctx context.Context, userID uint64, req CreateRequest) (*model.Booking, error) {
    seats, passengers, err := validate(req)
    if err != nil {
        return nil, s.fail("create", err)
    }

    var trip *model.Trip
    err = s.retry(ctx, "load trip", func(ctx context.Context) error {
        var err error
        trip, err = s.trips.GetByID(ctx, req.TripID)
        return err
    })
    if errors.Is(err, model.ErrNotFound) {
        return nil, s.fail("create", model.TripUnavailableError{TripID: req.TripID, Reason: "not found"})
    }
    if err != nil {
        return nil, s.fail("create", err)
    }
    now := s.now()
    if trip.Status != model.TripScheduled {
        return nil, s.fail("create", model.TripUnavailableError{TripID: trip.ID, Reason: trip.Status})
    }
    if !trip.DepartureAt.After(now) {
        return nil, s.fail("create", model.TripUnavailableError{TripID: trip.ID, Reason: "departed"})
    }

    if err := s.guard.Claim(ctx, trip.ID, seats); err != nil {
        return nil, s.fail("create", err)
    }

    // From here on seats are held; every failure must give them back.
    breakdown, err := s.fares.Compute(trip.Fare, len(seats), req.CouponCode)
    if err != nil {
        return nil, s.fail("create", s.compensate(trip.ID, seats, userID, "", err))
    }
    pnr, err := s.newPNR(now)
    if err != nil {
        return nil, s.fail("create", s.compensate(trip.ID, seats, userID, "", err))
    }

    // walletPNR is set once a debit may have landed.
    walletPNR := ""
    if req.UseWallet && breakdown.Total > 0 {
        walletPNR = pnr
        used, err := s.debitWallet(ctx, userID, breakdown.Total, pnr)
        if err != nil {
            return nil, s.fail("create", s.compensate(trip.ID, seats, userID, walletPNR, err))
        }
        breakdown.WalletUsed = used
        breakdown.Total -= used
    }

    ref := strings.TrimSpace(req.PaymentOrderID)
    if ref == "" {
        ref = "mock_" + uuid.NewString()
    }
    b := &model.Booking{
        PNR:           pnr,
        UserID:        userID,
        TripID:        trip.ID,
        Source:        trip.Source,
        Destination:   trip.Destination,
        TravelDate:    trip.DepartureAt,
        Passengers:    passengers,
        Fare:          breakdown,
        PaymentStatus: model.PaymentPaid,
        Status:        model.BookingBooked,
        PaymentRef:    &ref,
    }
    if err := s.persist(ctx, b); err != nil {
        return nil, s.fail("create", s.compensate(trip.ID, seats, userID, walletPNR, err))
    }

    metrics.BookingsCreated.Inc()
    s.logger.Info("booking created", "pnr", b.PNR, "booking_id", b.ID, "user_id", userID, "trip_id", trip.ID,
        "seats", seats, "total_cents", int64(b.Fare.Total), "wallet_used_cents", int64(b.Fare.WalletUsed))
    s.notify(queue.EventBookingCreated, b, 0, 0)
    return b, nil
}

// debitWallet takes min(balance, total).  A concurrent movement can make
// the conditional debit miss; the balance is then re-read and the debit
// retried a few times.
func (s *BookingService) debitWallet(ctx context.Context, userID uint64, total model.Money, pnr string) (model.Money, error) {
    var lastErr error
    for attempt := 0; attempt < s.opts.Attempts; attempt++ {
        var bal model.Money
        if err := s.retry(ctx, "wallet balance", func(ctx context.Context) error {
            var err error
            bal, err = s.wallet.Balance(ctx, userID)
            return err
        }); err != nil {
            return 0, err
        }
        amount := model.MinMoney(bal, total)
        if amount <= 0 {
            return 0, nil
        }
        // The key makes a replay after an ambiguous failure a no-op.
        err := s.retry(ctx, "wallet debit", func(ctx context.Context) error {
            _, err := s.wallet.Debit(ctx, userID, amount, model.DebitKey(pnr))
            return err
        })
        if err == nil {
            return amount, nil
        }
        if !errors.Is(err, model.ErrInsufficientFunds) {
            return 0, err
        }
        lastErr = err
    }
    return 0, lastErr
}

// persist writes the booking, retrying transient failures.  A failed
// commit is ambiguous, so before each retry and after a duplicate PNR the
// reference is looked up: finding our own row means the write landed.
func (s *BookingService) persist(ctx context.Context, b *model.Booking) error {
    var err error
    for attempt := 0; attempt < s.opts.Attempts; attempt++ {
        if attempt > 0 {
            if ok := s.landed(b); ok {
                return nil
            }
            if serr := s.sleep(ctx, s.backoff(attempt-1)); serr != nil {
                return serr
            }
        }
        opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
        err = s.bookings.Create(opCtx, b)
        cancel()
        switch {
        case err == nil:
            return nil
        case errors.Is(err, model.ErrDuplicatePNR):
            if attempt > 0 && s.landed(b) {
                return nil
            }
            return err
        case !model.IsTransient(err):
            if ctx.Err() != nil && s.landed(b) {
                return nil
            }
            return err
        }
    }
    if s.landed(b) {
        return nil
    }
    return err
}

// landed reports whether b was stored by an earlier ambiguous attempt and,
// if so, copies the stored ID and timestamps onto b.
func (s *BookingService) landed(b *model.Booking) bool {
    ctx, cancel := context.WithTimeout(context.Background(), s.opts.OpTimeout)
    defer cancel()
    got, err := s.bookings.GetByPNR(ctx, b.PNR)
    if err != nil || got.UserID != b.UserID || got.TripID != b.TripID {
        return false
    }
    b.ID, b.CreatedAt, b.UpdatedAt = got.ID, got.CreatedAt, got.UpdatedAt
    return true
}

// compensate undoes a partially applied create: the wallet debit made
// under walletPNR (if any landed) is reversed and the seats released.  It
// runs detached from the request so a disconnecting client cannot
// interrupt it.  It returns cause when every step succeeded, otherwise a
// FatalInconsistencyError.
func (s *BookingService) compensate(tripID uint64, seats []string, userID uint64, walletPNR string, cause error) error {
    ctx, cancel := context.WithTimeout(context.Background(), s.opts.CompensationTimeout)
    defer cancel()

    var failures []string
    var reversed model.Money
    if walletPNR != "" {
        err := s.retry(ctx, "wallet reversal", func(ctx context.Context) error {
            var err error
            reversed, err = s.wallet.Reverse(ctx, userID, walletPNR)
            return err
        }, model.IsTransient, isTimeout)
        if err != nil {
            failures = append(failures, "wallet reversal: "+err.Error())
        }
    }
    err := s.retry(ctx, "seat release", func(ctx context.Context) error {
        return s.guard.Release(ctx, tripID, seats)
    }, model.IsTransient, isTimeout)
    if err != nil {
        failures = append(failures, "seat release: "+err.Error())
    }
    if len(failures) == 0 {
        s.logger.Warn("booking rolled back", "trip_id", tripID, "user_id", userID, "pnr", walletPNR,
            "seats", seats, "wallet_reversed_cents", int64(reversed), "cause", cause)
        return cause
    }
    detail := fmt.Sprintf("trip_id=%d user_id=%d pnr=%s seats=%s", tripID, userID, walletPNR, strings.Join(seats, ","))
    return s.fatal("create booking compensation", detail, errors.Join(cause, errors.New(strings.Join(failures, "; "))))
}

// Cancel cancels a booking owned by userID and credits the refund to the
// wallet.  The status gate runs first, so of two cancellations only one
// proceeds and the refund is credited once.  Seat release is best effort.
// A refund that cannot be credited after the gate is a
// model.FatalInconsistencyError.
func (s *BookingService) Cancel(ctx context.Context, userID, bookingID uint64) (*CancelResult, error) {
    b, err := s.get(ctx, bookingID)
    if err != nil {
        return nil, s.fail("cancel", err)
    }
    if b.UserID != userID {
        return nil, s.fail("cancel", model.ErrForbidden)
    }
    if b.Status == model.BookingCancelled {
        return nil, s.fail("cancel", model.ErrAlreadyCancelled)
    }

    // DATETIME keeps whole seconds; markCancelled compares against the
    // stored value.
    now := s.now().Truncate(time.Second)
    percent := refund.PercentFor(b.TravelDate, now)
    amount := refund.Amount(b.Fare.Total, percent)

    // From the gate on the steps must finish even if the client goes away.
    ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CompensationTimeout)
    defer cancel()
    if err := s.markCancelled(ctx, b, now, percent, amount); err != nil {
        return nil, s.fail("cancel", err)
    }

    if err := s.guard.Release(ctx, b.TripID, b.SeatLabels()); err != nil {
        s.logger.Warn("seat release after cancellation failed", "pnr", b.PNR, "trip_id", b.TripID, "seats", b.SeatLabels(), "error", err)
    }

    var balance model.Money
    err = s.retry(ctx, "refund credit", func(ctx context.Context) error {
        var err error
        balance, err = s.wallet.Credit(ctx, userID, amount, model.EntryRefund, model.RefundKey(b.PNR))
        return err
    }, model.IsTransient, isTimeout)
    if err != nil {
        detail := fmt.Sprintf("booking_id=%d pnr=%s user_id=%d refund_percent=%d refund_cents=%d cancelled_at=%s",
            b.ID, b.PNR, userID, percent, int64(amount), now.Format(time.RFC3339))
        return nil, s.fail("cancel", s.fatal("refund credit", detail, err))
    }

    b.Status = model.BookingCancelled
    b.PaymentStatus = model.PaymentRefunded
    b.CancelledAt = &now
    b.RefundPercent = percent
    b.RefundAmount = amount

    metrics.BookingsCancelled.Inc()
    s.logger.Info("booking cancelled", "pnr", b.PNR, "booking_id", b.ID, "user_id", userID,
        "refund_percent", percent, "refund_cents", int64(amount), "balance_cents", int64(balance))
    s.notify(queue.EventBookingCancelled, b, percent, amount)
    return &CancelResult{Booking: b, RefundPercent: percent, RefundAmount: amount, WalletBalance: balance}, nil
}

// markCancelled applies the conditional status update.  A transient
// failure is ambiguous: the row is re-read and, if it already shows this
// cancellation, the gate counts as passed (the refund credit is keyed, so
// crediting again is harmless).
func (s *BookingService) markCancelled(ctx context.Context, b *model.Booking, now time.Time, percent int, amount model.Money) error {
    var err error
    for attempt := 0; attempt < s.opts.Attempts; attempt++ {
        opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
        err = s.bookings.MarkCancelled(opCtx, b.ID, now, percent, amount)
        cancel()
        if err == nil || !model.IsTransient(err) {
            return err
        }
        if cur, gerr := s.get(ctx, b.ID); gerr == nil && cur.Status == model.BookingCancelled {
            if cur.CancelledAt != nil && cur.CancelledAt.Equal(now) {
                return nil
            }
            return model.ErrAlreadyCancelled
        }
        if serr := s.sleep(ctx, s.backoff(attempt)); serr != nil {
            return serr
        }
    }
    return err
}

// Preview prices a booking without side effects.
func (s *BookingService) Preview(baseFare model.Money, seatCount int, coupon string) (model.FareBreakdown, error) {
    return s.fares.Compute(baseFare, seatCount, coupon)
}

// Get returns one booking if userID owns it.
func (s *BookingService) Get(ctx context.Context, userID, bookingID uint64) (*model.Booking, error) {
    b, err := s.get(ctx, bookingID)
    if err != nil {
        return nil, err
    }
    if b.UserID != userID {
        return nil, model.ErrForbidden
    }
    return b, nil
}

// List returns the user's bookings, newest first.
func (s *BookingService) List(ctx context.Context, userID uint64, limit, offset int) ([]*model.Booking, error) {
    var out []*model.Booking
    err := s.retry(ctx, "list bookings", func(ctx context.Context) error {
        var err error
        out, err = s.bookings.ListByUser(ctx, userID, limit, offset)
        return err
    })
    return out, err
}

func (s *BookingService) get(ctx context.Context, id uint64) (*model.Booking, error) {
    var b *model.Booking
    err := s.retry(ctx, "load booking", func(ctx context.Context) error {
        var err error
        b, err = s.bookings.GetByID(ctx, id)
        return err
    })
    return b, err
}

func (s *BookingService) notify(kind string, b *model.Booking, percent int, amount model.Money) {
    if s.notifier == nil {
        return
    }
    s.notifier.Notify(queue.BookingEvent{
        EventID:           uuid.NewString(),
        Type:              kind,
        UserID:            b.UserID,
        BookingID:         b.ID,
        PNR:               b.PNR,
        Source:            b.Source,
        Destination:       b.Destination,
        TravelDate:        b.TravelDate,
        Seats:             b.SeatLabels(),
        AmountCents:       int64(b.Fare.Total),
        RefundPercent:     percent,
        RefundAmountCents: int64(amount),
        OccurredAt:        s.now(),
    })
}

// retry runs fn with a per-call timeout, retrying while the error matches
// one of retryable (transient errors by default) up to opts.Attempts.
func (s *BookingService) retry(ctx context.Context, op string, fn func(context.Context) error, retryable ...func(error) bool) error {
    if len(retryable) == 0 {
        retryable = []func(error) bool{model.IsTransient}
    }
    var err error
    for attempt := 0; attempt < s.opts.Attempts; attempt++ {
        opCtx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
        err = fn(opCtx)
        cancel()
        if err == nil || !matchesAny(err, retryable) {
            return err
        }
        s.logger.Debug("retrying store call", "op", op, "attempt", attempt+1, "error", err)
        if attempt+1 < s.opts.Attempts {
            if serr := s.sleep(ctx, s.backoff(attempt)); serr != nil {
                return err
            }
        }
    }
    if isTimeout(err) && !model.IsTransient(err) {
        return model.TransientError{Op: op, Err: err}
    }
    return err
}

func matchesAny(err error, preds []func(error) bool) bool {
    for _, p := range preds {
        if p(err) {
            return true
        }
    }
    return false
}

func isTimeout(err error) bool { return errors.Is(err, context.DeadlineExceeded) }

func (s *BookingService) backoff(attempt int) time.Duration {
    return s.opts.Backoff << attempt
}

func sleepCtx(ctx context.Context, d time.Duration) error {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}

// fatal logs and counts a failed compensation.
func (s *BookingService) fatal(op, detail string, err error) error {
    metrics.FatalInconsistencies.Inc()
    s.logger.Error("FATAL inconsistency: manual reconciliation required", "op", op, "detail", detail, "error", err, "at", s.now().Format(time.RFC3339Nano))
    return model.FatalInconsistencyError{Op: op, Detail: detail, Err: err}
}

// fail counts err by class and returns it unchanged.
func (s *BookingService) fail(op string, err error) error {
    metrics.BookingFailures.WithLabelValues(op, errorClass(err)).Inc()
    return err
}

func errorClass(err error) string {
    switch {
    case model.IsFatal(err):
        return "fatal"
    case model.IsValidation(err):
        return "validation"
    case model.IsSeatConflict(err):
        return "seat_conflict"
    case model.IsTripUnavailable(err):
        return "trip_unavailable"
    case model.IsTransient(err):
        return "transient"
    case errors.Is(err, model.ErrAlreadyCancelled):
        return "already_cancelled"
    case errors.Is(err, model.ErrDuplicatePNR):
        return "duplicate_pnr"
    case errors.Is(err, model.ErrNotFound):
        return "not_found"
    case errors.Is(err, model.ErrForbidden):
        return "forbidden"
    case errors.Is(err, model.ErrInsufficientFunds):
        return "insufficient_funds"
    }
    return "other"
}
