// Package sqlite persists a massivepoints tree in a SQLite database.
//
// The tree is stored tabular: one row per internal node and one row
// per stored point, keyed by the node id the point list belongs to.
// Coordinates are stored as JSON arrays and values through a
// ValueCodec. Sessions map to database transactions, so a read
// session observes a consistent snapshot and an update session
// becomes visible atomically on Finish.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"iter"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/kekyo/massivepoints"
)

// rootID is fixed for the life of the database.
const rootID = int64(0)

// DataProvider is a persistent backend over a SQLite database.
type DataProvider[V any] struct {
	db            *sql.DB
	codec         ValueCodec[V]
	mu            sync.RWMutex
	entire        massivepoints.Bound
	maxNodePoints int
}

var _ massivepoints.DataProvider[string, int64] = (*DataProvider[string])(nil)

// Open opens (creating if necessary) the database at path and
// initializes a provider over it. ":memory:" selects a transient
// database; the connection pool is then pinned to one connection so
// every session sees the same store.
func Open[V any](path string, codec ValueCodec[V], entire massivepoints.Bound, maxNodePoints int) (*DataProvider[V], error) {
	connString := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite3", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	provider, err := NewDataProvider(db, codec, entire, maxNodePoints)
	if err != nil {
		db.Close()
		return nil, err
	}
	return provider, nil
}

// NewDataProvider initializes a provider over an already-open
// database, creating the schema when missing. A database that already
// holds a tree keeps its stored entire bound and leaf capacity; a
// non-nil given entire must match the stored one, a nil one adopts it.
// maxNodePoints below 1
// selects the default capacity.
func NewDataProvider[V any](db *sql.DB, codec ValueCodec[V], entire massivepoints.Bound, maxNodePoints int) (*DataProvider[V], error) {
	if maxNodePoints < 1 {
		maxNodePoints = massivepoints.DefaultMaxNodePoints
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	p := &DataProvider[V]{db: db, codec: codec, entire: entire, maxNodePoints: maxNodePoints}

	var stored string
	err := db.QueryRow(`SELECT value FROM quad_meta WHERE key = ?`, metaEntire).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		entireJSON, err := json.Marshal(entire)
		if err != nil {
			return nil, fmt.Errorf("failed to encode entire bound: %w", err)
		}
		tx, err := db.Begin()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metadata: %w", err)
		}
		for key, value := range map[string]string{
			metaEntire:        string(entireJSON),
			metaMaxNodePoints: fmt.Sprintf("%d", maxNodePoints),
			metaMaxNodeID:     fmt.Sprintf("%d", rootID),
		} {
			if _, err := tx.Exec(`INSERT INTO quad_meta (key, value) VALUES (?, ?)`, key, value); err != nil {
				tx.Rollback()
				return nil, fmt.Errorf("failed to initialize metadata: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to initialize metadata: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	default:
		var storedEntire massivepoints.Bound
		if err := json.Unmarshal([]byte(stored), &storedEntire); err != nil {
			return nil, fmt.Errorf("failed to decode stored entire bound: %w", err)
		}
		if entire != nil && !storedEntire.Equal(entire) {
			return nil, fmt.Errorf("database already covers %v, not %v", storedEntire, entire)
		}
		p.entire = storedEntire
		var storedMax int
		if err := db.QueryRow(`SELECT value FROM quad_meta WHERE key = ?`, metaMaxNodePoints).Scan(&storedMax); err != nil {
			return nil, fmt.Errorf("failed to read metadata: %w", err)
		}
		p.maxNodePoints = storedMax
	}
	return p, nil
}

// Close closes the underlying database.
func (p *DataProvider[V]) Close() error {
	return p.db.Close()
}

// BeginSession starts a database transaction and returns a session
// bound to it. Update sessions additionally hold the provider's
// writer lock until Finish.
func (p *DataProvider[V]) BeginSession(ctx context.Context, willUpdate bool) (massivepoints.ProviderSession[V, int64], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if willUpdate {
		p.mu.Lock()
	} else {
		p.mu.RLock()
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		p.release(willUpdate)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &session[V]{provider: p, tx: tx, willUpdate: willUpdate, maxNodeID: -1}, nil
}

func (p *DataProvider[V]) release(willUpdate bool) {
	if willUpdate {
		p.mu.Unlock()
	} else {
		p.mu.RUnlock()
	}
}

type session[V any] struct {
	provider   *DataProvider[V]
	tx         *sql.Tx
	willUpdate bool
	finished   bool

	// opMu serializes operations on the single transaction
	// connection: the tree engine fans out concurrent lookups within
	// one call, and a query must not start while another result
	// cursor is still open.
	opMu sync.Mutex

	// Id allocator state, loaded from quad_meta on first use.
	// -1 until loaded.
	maxNodeID int64
}

func (s *session[V]) check(mutating bool) error {
	if s.finished {
		return massivepoints.ErrSessionFinished
	}
	if mutating && !s.willUpdate {
		return massivepoints.ErrReadOnlySession
	}
	return nil
}

func (s *session[V]) Entire() massivepoints.Bound {
	return s.provider.entire
}

func (s *session[V]) MaxNodePoints() int {
	return s.provider.maxNodePoints
}

func (s *session[V]) RootID() int64 {
	return rootID
}

func (s *session[V]) GetNode(ctx context.Context, id int64) (*massivepoints.QuadNode[int64], error) {
	if err := s.check(false); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.getNode(ctx, id)
}

func (s *session[V]) getNode(ctx context.Context, id int64) (*massivepoints.QuadNode[int64], error) {
	var childIDsJSON string
	err := s.tx.QueryRowContext(ctx, `SELECT child_ids FROM quad_nodes WHERE id = ?`, id).Scan(&childIDsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read node %d: %w", id, err)
	}
	var childIDs []int64
	if err := json.Unmarshal([]byte(childIDsJSON), &childIDs); err != nil {
		return nil, fmt.Errorf("failed to decode children of node %d: %w", id, err)
	}
	return &massivepoints.QuadNode[int64]{ChildIDs: childIDs}, nil
}

func (s *session[V]) GetPointCount(ctx context.Context, id int64) (int, error) {
	if err := s.check(false); err != nil {
		return 0, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.getPointCount(ctx, id)
}

func (s *session[V]) getPointCount(ctx context.Context, id int64) (int, error) {
	var count int
	err := s.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM quad_points WHERE node_id = ?`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count points of node %d: %w", id, err)
	}
	return count, nil
}

func (s *session[V]) InsertPoints(ctx context.Context, id int64, items []massivepoints.PointItem[V], offset int, force bool) (int, error) {
	if err := s.check(true); err != nil {
		return 0, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	n := len(items) - offset
	if !force {
		current, err := s.getPointCount(ctx, id)
		if err != nil {
			return 0, err
		}
		if room := s.provider.maxNodePoints - current; room < n {
			n = room
		}
		if n <= 0 {
			return 0, nil
		}
	}
	stmt, err := s.tx.PrepareContext(ctx, `INSERT INTO quad_points (node_id, coords, value) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare point insert: %w", err)
	}
	defer stmt.Close()
	for _, item := range items[offset : offset+n] {
		coords, err := json.Marshal(item.Point)
		if err != nil {
			return 0, fmt.Errorf("failed to encode point %v: %w", item.Point, err)
		}
		value, err := s.provider.codec.Encode(item.Value)
		if err != nil {
			return 0, fmt.Errorf("failed to encode value at %v: %w", item.Point, err)
		}
		if _, err := stmt.ExecContext(ctx, id, string(coords), value); err != nil {
			return 0, fmt.Errorf("failed to insert point %v: %w", item.Point, err)
		}
	}
	return n, nil
}

// pointRow is one quad_points row with its decoded coordinates. The
// value stays codec-encoded while rows move between nodes.
type pointRow struct {
	rowid int64
	point massivepoints.Point
	value []byte
}

func (s *session[V]) readRows(ctx context.Context, id int64) ([]pointRow, error) {
	rows, err := s.tx.QueryContext(ctx, `SELECT rowid, coords, value FROM quad_points WHERE node_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read points of node %d: %w", id, err)
	}
	defer rows.Close()
	var result []pointRow
	for rows.Next() {
		var (
			row    pointRow
			coords string
		)
		if err := rows.Scan(&row.rowid, &coords, &row.value); err != nil {
			return nil, fmt.Errorf("failed to scan point of node %d: %w", id, err)
		}
		if err := json.Unmarshal([]byte(coords), &row.point); err != nil {
			return nil, fmt.Errorf("failed to decode point of node %d: %w", id, err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read points of node %d: %w", id, err)
	}
	return result, nil
}

func (s *session[V]) loadMaxNodeID(ctx context.Context) error {
	if s.maxNodeID >= 0 {
		return nil
	}
	err := s.tx.QueryRowContext(ctx, `SELECT value FROM quad_meta WHERE key = ?`, metaMaxNodeID).Scan(&s.maxNodeID)
	if err != nil {
		return fmt.Errorf("failed to read id allocator state: %w", err)
	}
	return nil
}

func (s *session[V]) Distribute(ctx context.Context, id int64, childBounds []massivepoints.Bound) (*massivepoints.QuadNode[int64], error) {
	if err := s.check(true); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.loadMaxNodeID(ctx); err != nil {
		return nil, err
	}
	points, err := s.readRows(ctx, id)
	if err != nil {
		return nil, err
	}

	node := &massivepoints.QuadNode[int64]{ChildIDs: make([]int64, len(childBounds))}
	for i := range childBounds {
		s.maxNodeID++
		node.ChildIDs[i] = s.maxNodeID
	}

	moved := 0
	stmt, err := s.tx.PrepareContext(ctx, `UPDATE quad_points SET node_id = ? WHERE rowid = ?`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare point move: %w", err)
	}
	defer stmt.Close()
	for _, row := range points {
		for i, bound := range childBounds {
			if bound.IsWithin(row.point) {
				if _, err := stmt.ExecContext(ctx, node.ChildIDs[i], row.rowid); err != nil {
					return nil, fmt.Errorf("failed to move point %v: %w", row.point, err)
				}
				moved++
				break
			}
		}
	}
	if moved != len(points) {
		return nil, fmt.Errorf("distribution lost points at node %d: had %d, partitioned %d", id, len(points), moved)
	}

	childIDsJSON, err := json.Marshal(node.ChildIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode children of node %d: %w", id, err)
	}
	if _, err := s.tx.ExecContext(ctx, `INSERT INTO quad_nodes (id, child_ids) VALUES (?, ?)`, id, string(childIDsJSON)); err != nil {
		return nil, fmt.Errorf("failed to install node %d: %w", id, err)
	}
	if _, err := s.tx.ExecContext(ctx, `UPDATE quad_meta SET value = ? WHERE key = ?`, fmt.Sprintf("%d", s.maxNodeID), metaMaxNodeID); err != nil {
		return nil, fmt.Errorf("failed to store id allocator state: %w", err)
	}
	return node, nil
}

func (s *session[V]) Aggregate(ctx context.Context, childIDs []int64, toBound massivepoints.Bound, toID int64) error {
	if err := s.check(true); err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	node, err := s.getNode(ctx, toID)
	if err != nil {
		return err
	}
	if node == nil {
		return fmt.Errorf("node %d is not an internal node", toID)
	}
	for _, childID := range childIDs {
		childNode, err := s.getNode(ctx, childID)
		if err != nil {
			return err
		}
		if childNode != nil {
			return fmt.Errorf("aggregation child %d is not a leaf", childID)
		}
		points, err := s.readRows(ctx, childID)
		if err != nil {
			return err
		}
		for _, row := range points {
			if !toBound.IsWithin(row.point) {
				return fmt.Errorf("aggregation child %d holds %v outside %v", childID, row.point, toBound)
			}
		}
		if _, err := s.tx.ExecContext(ctx, `UPDATE quad_points SET node_id = ? WHERE node_id = ?`, toID, childID); err != nil {
			return fmt.Errorf("failed to move points of node %d: %w", childID, err)
		}
	}
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM quad_nodes WHERE id = ?`, toID); err != nil {
		return fmt.Errorf("failed to remove node %d: %w", toID, err)
	}
	return nil
}

func (s *session[V]) LookupPoint(ctx context.Context, id int64, p massivepoints.Point) ([]massivepoints.PointItem[V], error) {
	return s.lookupWith(ctx, id, func(candidate massivepoints.Point) bool {
		return candidate.Equal(p)
	})
}

func (s *session[V]) LookupBound(ctx context.Context, id int64, b massivepoints.Bound) ([]massivepoints.PointItem[V], error) {
	return s.lookupWith(ctx, id, func(candidate massivepoints.Point) bool {
		return b.IsWithin(candidate)
	})
}

func (s *session[V]) lookupWith(ctx context.Context, id int64, match func(massivepoints.Point) bool) ([]massivepoints.PointItem[V], error) {
	if err := s.check(false); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	points, err := s.readRows(ctx, id)
	if err != nil {
		return nil, err
	}
	var results []massivepoints.PointItem[V]
	for _, row := range points {
		if !match(row.point) {
			continue
		}
		value, err := s.provider.codec.Decode(row.value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode value at %v: %w", row.point, err)
		}
		results = append(results, massivepoints.NewPointItem(row.point, value))
	}
	return results, nil
}

func (s *session[V]) EnumerateBound(ctx context.Context, id int64, b massivepoints.Bound) iter.Seq2[massivepoints.PointItem[V], error] {
	return func(yield func(massivepoints.PointItem[V], error) bool) {
		if err := s.check(false); err != nil {
			yield(massivepoints.PointItem[V]{}, err)
			return
		}
		s.opMu.Lock()
		defer s.opMu.Unlock()
		rows, err := s.tx.QueryContext(ctx, `SELECT coords, value FROM quad_points WHERE node_id = ?`, id)
		if err != nil {
			yield(massivepoints.PointItem[V]{}, fmt.Errorf("failed to read points of node %d: %w", id, err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var (
				coords string
				data   []byte
			)
			if err := rows.Scan(&coords, &data); err != nil {
				yield(massivepoints.PointItem[V]{}, fmt.Errorf("failed to scan point of node %d: %w", id, err))
				return
			}
			var p massivepoints.Point
			if err := json.Unmarshal([]byte(coords), &p); err != nil {
				yield(massivepoints.PointItem[V]{}, fmt.Errorf("failed to decode point of node %d: %w", id, err))
				return
			}
			if !b.IsWithin(p) {
				continue
			}
			value, err := s.provider.codec.Decode(data)
			if err != nil {
				yield(massivepoints.PointItem[V]{}, fmt.Errorf("failed to decode value at %v: %w", p, err))
				return
			}
			if !yield(massivepoints.NewPointItem(p, value), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(massivepoints.PointItem[V]{}, fmt.Errorf("failed to read points of node %d: %w", id, err))
		}
	}
}

func (s *session[V]) RemovePoint(ctx context.Context, id int64, p massivepoints.Point, includeRemains bool) (massivepoints.RemoveResults, error) {
	return s.removeWith(ctx, id, includeRemains, func(candidate massivepoints.Point) bool {
		return candidate.Equal(p)
	})
}

func (s *session[V]) RemoveBound(ctx context.Context, id int64, b massivepoints.Bound, includeRemains bool) (massivepoints.RemoveResults, error) {
	return s.removeWith(ctx, id, includeRemains, func(candidate massivepoints.Point) bool {
		return b.IsWithin(candidate)
	})
}

func (s *session[V]) removeWith(ctx context.Context, id int64, includeRemains bool, match func(massivepoints.Point) bool) (massivepoints.RemoveResults, error) {
	if err := s.check(true); err != nil {
		return massivepoints.RemoveResults{}, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	points, err := s.readRows(ctx, id)
	if err != nil {
		return massivepoints.RemoveResults{}, err
	}
	stmt, err := s.tx.PrepareContext(ctx, `DELETE FROM quad_points WHERE rowid = ?`)
	if err != nil {
		return massivepoints.RemoveResults{}, fmt.Errorf("failed to prepare point delete: %w", err)
	}
	defer stmt.Close()
	removed := int64(0)
	for _, row := range points {
		if !match(row.point) {
			continue
		}
		if _, err := stmt.ExecContext(ctx, row.rowid); err != nil {
			return massivepoints.RemoveResults{}, fmt.Errorf("failed to delete point %v: %w", row.point, err)
		}
		removed++
	}
	results := massivepoints.RemoveResults{Removed: removed, Remains: massivepoints.RemainsUnknown}
	if includeRemains {
		results.Remains = len(points) - int(removed)
	}
	return results, nil
}

// Flush commits the transaction so far and opens a new one,
// checkpointing the session's partial work.
func (s *session[V]) Flush(ctx context.Context) error {
	if err := s.check(false); err != nil {
		return err
	}
	if !s.willUpdate {
		return nil
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("failed to checkpoint: %w", err)
	}
	tx, err := s.provider.db.BeginTx(ctx, nil)
	if err != nil {
		s.finished = true
		s.provider.release(s.willUpdate)
		return fmt.Errorf("failed to resume after checkpoint: %w", err)
	}
	s.tx = tx
	return nil
}

// Finish commits (update sessions) or discards (read sessions) the
// transaction and releases the store.
func (s *session[V]) Finish(ctx context.Context) error {
	if s.finished {
		return massivepoints.ErrSessionFinished
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.finished = true
	defer s.provider.release(s.willUpdate)
	if s.willUpdate {
		if err := s.tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit session: %w", err)
		}
		return nil
	}
	if err := s.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to release session: %w", err)
	}
	return nil
}
