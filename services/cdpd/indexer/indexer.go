package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cdpchain/core/events"
	"cdpchain/crypto"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

var ErrUnsupportedDriver = errors.New("indexer: unsupported driver")

// accountKeys are checked in order to find the account an event is about.
var accountKeys = []string{"owner", "challenger", "bidder", "buyer", "beneficiary", "from", "to"}

// Open connects to the index database. driver is "postgres" or "sqlite".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	return gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
}

// Indexer persists committed events and answers history queries. It is an
// events.Emitter so it can be attached to the protocol directly.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq uint64
}

func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	var last uint64
	if err := db.Model(&EventRecord{}).Select("COALESCE(MAX(seq), 0)").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", err)
	}
	return &Indexer{db: db, logger: log, now: time.Now, seq: last}, nil
}

// Emit records evt. Failures are logged; the protocol state has already
// committed and cannot be rolled back from here.
func (i *Indexer) Emit(evt events.Event) {
	if _, err := i.Record(context.Background(), evt); err != nil {
		i.logger.Error("indexer: record event", "type", evt.EventType(), "error", err)
	}
}

// Record stores evt and returns the stored row.
func (i *Indexer) Record(ctx context.Context, evt events.Event) (*EventRecord, error) {
	rendered := events.Render(evt)
	if rendered == nil {
		return nil, errors.New("indexer: nil event")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	record := &EventRecord{
		ID:         uuid.New(),
		Seq:        i.seq + 1,
		Type:       rendered.Type,
		Position:   firstAttr(rendered.Attributes, "position", "source"),
		Related:    rendered.Attr("target"),
		Account:    firstAttr(rendered.Attributes, accountKeys...),
		Attributes: rendered.Attributes,
		CreatedAt:  i.now().UTC(),
	}
	if err := i.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	i.seq = record.Seq
	return record, nil
}

// Filter narrows a history query. Zero fields match everything.
type Filter struct {
	Type     string
	Position crypto.Address
	Account  crypto.Address
	AfterSeq uint64
	Limit    int
}

// Query returns matching records in commit order.
func (i *Indexer) Query(ctx context.Context, filter Filter) ([]EventRecord, error) {
	q := i.db.WithContext(ctx).Model(&EventRecord{}).Where("seq > ?", filter.AfterSeq)
	if t := strings.TrimSpace(filter.Type); t != "" {
		q = q.Where("type = ?", t)
	}
	if !filter.Position.IsZero() {
		addr := filter.Position.String()
		q = q.Where("position = ? OR related = ?", addr, addr)
	}
	if !filter.Account.IsZero() {
		q = q.Where("account = ?", filter.Account.String())
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	var records []EventRecord
	if err := q.Order("seq ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// ByPosition returns the history of one position.
func (i *Indexer) ByPosition(ctx context.Context, addr crypto.Address, limit int) ([]EventRecord, error) {
	return i.Query(ctx, Filter{Position: addr, Limit: limit})
}

// Each streams every record after afterSeq to fn in commit order, in pages.
func (i *Indexer) Each(ctx context.Context, afterSeq uint64, fn func(EventRecord) error) error {
	cursor := afterSeq
	for {
		page, err := i.Query(ctx, Filter{AfterSeq: cursor, Limit: maxLimit})
		if err != nil {
			return err
		}
		for _, record := range page {
			if err := fn(record); err != nil {
				return err
			}
			cursor = record.Seq
		}
		if len(page) < maxLimit {
			return nil
		}
	}
}

// LastSeq returns the sequence number of the newest record.
func (i *Indexer) LastSeq() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.seq
}

func firstAttr(attrs map[string]string, keys ...string) string {
	for _, key := range keys {
		if value := attrs[key]; value != "" {
			return value
		}
	}
	return ""
}
