package cache

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// AccountNotification is a single accountSubscribe/accountUnsubscribe
// change notification from the chain's websocket RPC endpoint.
type AccountNotification struct {
	Account string `json:"account"`
}

// Subscriber watches a chain websocket endpoint for account-change
// notifications and invalidates the matching cache entries so a stale
// lookup table or mint record never outlives the account it was read from.
// It never sees or invalidates anything signature-bearing — lookup tables
// and mint metadata only.
type Subscriber struct {
	conn   *websocket.Conn
	cache  Cache
	logger *zap.Logger
}

func DialSubscriber(ctx context.Context, endpoint string, cache Cache, logger *zap.Logger) (*Subscriber, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return &Subscriber{conn: conn, cache: cache, logger: logger}, nil
}

// Run reads notifications until ctx is cancelled or the connection closes.
// Each notification invalidates the lookup-table and mint cache entries for
// the affected account so the next read fetches fresh data.
func (s *Subscriber) Run(ctx context.Context) {
	defer s.conn.Close()
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("account subscriber closed unexpectedly", zap.Error(err))
			}
			return
		}
		var note AccountNotification
		if err := json.Unmarshal(raw, &note); err != nil {
			continue
		}
		s.cache.Invalidate(ctx, "lookup:"+note.Account)
		s.cache.Invalidate(ctx, "mint:"+note.Account)
	}
}
