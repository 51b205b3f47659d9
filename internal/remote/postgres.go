package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"
)

const (
	postgresChangeChannel = "orbit_changes"
	// NOTIFY payloads are capped at 8000 bytes.
	postgresMaxPayload = 7800
)

// notification is the NOTIFY payload. Large rows are sent by id only and
// re-read by the listener.
type notification struct {
	Table  string     `json:"table"`
	Kind   ChangeKind `json:"kind"`
	ID     string     `json:"id"`
	Record Record     `json:"record,omitempty"`
	Old    Record     `json:"old,omitempty"`
}

// scopeColumns are kept on compacted deletes so subscription filters still
// apply.
var scopeColumns = []string{"id", "user_id", "author_id", "is_private"}

func compactRecord(r Record) Record {
	if r == nil {
		return nil
	}
	out := Record{}
	for _, k := range scopeColumns {
		if v, ok := r[k]; ok {
			out[k] = v
		}
	}
	return out
}

func encodeNotification(c Change) (string, error) {
	n := notification{Table: c.Table, Kind: c.Kind, Record: c.Record, Old: c.Old}
	if c.Record != nil {
		n.ID = c.Record.ID()
	} else if c.Old != nil {
		n.ID = c.Old.ID()
	}
	data, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	if len(data) <= postgresMaxPayload {
		return string(data), nil
	}
	n.Record = nil
	n.Old = compactRecord(c.Old)
	data, err = json.Marshal(n)
	return string(data), err
}

// OpenPostgres opens (and migrates) a Postgres database. Writes are announced
// with NOTIFY and every process listening on the database relays them to its
// feed, so subscribers see changes made by other processes.
func OpenPostgres(ctx context.Context, dsn string, feed *Feed) (*SQLDB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty postgres dsn", ErrInvalidInput)
	}
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()
	if err := db.PingContext(opCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrate(opCtx, db, postgresDialect); err != nil {
		_ = db.Close()
		return nil, err
	}

	if feed == nil {
		feed = NewFeed(nil)
	}
	s := newSQLDB(db, postgresDialect, feed)
	s.publish = func(ctx context.Context, c Change) error {
		payload, err := encodeNotification(c)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
		defer cancel()
		_, err = db.ExecContext(ctx, "SELECT pg_notify($1, $2)", postgresChangeChannel, payload)
		return err
	}

	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("postgres listener", "event", ev, "error", err)
		}
	})
	if err := listener.Listen(postgresChangeChannel); err != nil {
		_ = listener.Close()
		_ = db.Close()
		return nil, fmt.Errorf("listen %s: %w", postgresChangeChannel, err)
	}

	relayCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.relay(relayCtx, listener)
	}()
	s.onClose = append(s.onClose, func() error {
		stop()
		err := listener.Close()
		<-done
		return err
	})
	return s, nil
}

// relay forwards notifications to the feed until ctx is done.
func (s *SQLDB) relay(ctx context.Context, l *pq.Listener) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-l.Notify:
			if !ok {
				return
			}
			// nil after a reconnect: notifications may have been lost.
			if n == nil {
				slog.Info("postgres listener reconnected")
				continue
			}
			c, err := s.decodeNotification(ctx, n.Extra)
			if err != nil {
				slog.Warn("decode change notification", "error", err)
				continue
			}
			if err := s.feed.Publish(ctx, c); err != nil {
				return
			}
		case <-time.After(90 * time.Second):
			go func() {
				if err := l.Ping(); err != nil {
					slog.Debug("postgres listener ping", "error", err)
				}
			}()
		}
	}
}

func (s *SQLDB) decodeNotification(ctx context.Context, payload string) (Change, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Change{}, err
	}
	c := Change{Kind: n.Kind, Table: n.Table, Record: n.Record, Old: n.Old}
	if c.Kind != ChangeDelete && c.Record == nil && n.ID != "" {
		rec, err := s.Get(ctx, n.Table, n.ID)
		if err != nil {
			return Change{}, err
		}
		c.Record = rec
	}
	return c, nil
}
