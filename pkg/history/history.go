// Package history stores a user's trades: OTC deals, gifts and settled swaps.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"near-intents/config"
)

// ErrNotFound is returned for unknown trade ids.
var ErrNotFound = errors.New("trade not found")

// Kind tells records apart.
type Kind string

const (
	KindSwap     Kind = "swap"
	KindWithdraw Kind = "withdraw"
	KindDeposit  Kind = "deposit"
	KindOTC      Kind = "otc"
	KindGift     Kind = "gift"
)

// Record is one stored trade. For OTC deals and gifts MultiPayload is the
// sealed signed payload and PKey/IV decrypt it.
type Record struct {
	TradeID      string    `json:"trade_id"`
	Kind         Kind      `json:"kind"`
	MultiPayload string    `json:"multi_payload,omitempty"`
	PKey         string    `json:"p_key,omitempty"`
	IV           string    `json:"iv,omitempty"`
	Handle       string    `json:"handle,omitempty"`
	TokenIn      string    `json:"token_in,omitempty"`
	TokenOut     string    `json:"token_out,omitempty"`
	TxHash       string    `json:"tx_hash,omitempty"`
	Status       string    `json:"status,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store persists records per user.
type Store interface {
	Put(ctx context.Context, userID string, rec Record) error
	Get(ctx context.Context, userID, tradeID string) (Record, error)
	// List returns records newest first.
	List(ctx context.Context, userID string) ([]Record, error)
	Delete(ctx context.Context, userID, tradeID string) error
	Close() error
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.HistoryConfig) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		s, err := NewFileStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := NewRedisStore(ctx, RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported history driver %q", cfg.Driver)
	}
}

func sortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].UpdatedAt.Equal(records[j].UpdatedAt) {
			return records[i].TradeID < records[j].TradeID
		}
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
}
