package txn

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/skepadb/skepadb/internal/catalog"
	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/constraints"
	"github.com/skepadb/skepadb/internal/metrics"
	"github.com/skepadb/skepadb/internal/query"
	"github.com/skepadb/skepadb/internal/storage"
)

var (
	ErrAlreadyActive = fmt.Errorf("transaction already active")
	ErrNoActive      = fmt.Errorf("no active transaction")
)

type txState struct {
	txid             uint64
	staged           []command.Command
	touched          map[string]bool
	snapCatalog      *catalog.Catalog
	snapStorage      storage.Engine
	beginFingerprint string
}

// Manager owns transaction lifecycle, WAL writes, and redo replay for one
// open database. Every Execute call runs under its lock: the engine is
// single-writer by design, and this lock is what enforces that.
type Manager struct {
	mu       sync.Mutex
	baseDir  string
	cat      *catalog.Catalog
	eng      storage.Engine
	wal      *WAL
	nextTxID uint64
	current  *txState
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func catalogPath(baseDir string) string {
	return filepath.Join(baseDir, "catalog.json")
}

func NewManager(baseDir string, cat *catalog.Catalog, eng storage.Engine, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		baseDir:  baseDir,
		cat:      cat,
		eng:      eng,
		wal:      NewWAL(filepath.Join(baseDir, "wal.log")),
		nextTxID: 1,
		log:      log,
	}
}

// SetMetrics attaches the collectors commit conflicts, WAL replay, and
// deferred constraint-violation events are reported to. Optional: a
// Manager with no metrics attached simply skips recording them.
func (m *Manager) SetMetrics(mx *metrics.Metrics) {
	m.metrics = mx
}

func (m *Manager) allocTxID() uint64 {
	id := m.nextTxID
	m.nextTxID++
	return id
}

func (m *Manager) checkpointAndTruncate() error {
	if err := m.eng.CheckpointAll(); err != nil {
		return err
	}
	return m.wal.Truncate()
}

// ReplayAndCheckpoint replays every committed-and-not-rolled-back WAL
// operation against the freshly bootstrapped catalog and storage, then
// checkpoints and truncates the log. It must run once, synchronously, as
// part of opening the database before any caller-issued command executes.
func (m *Manager) ReplayAndCheckpoint() error {
	lines, err := m.wal.ReadLines()
	if err != nil {
		return err
	}
	if err := Replay(lines, func(payload string) error {
		cmd, err := command.Decode([]byte(payload))
		if err != nil {
			return err
		}
		_, err = query.Execute(m.cat, m.eng, cmd)
		if err == nil && m.metrics != nil {
			m.metrics.WALReplayOpsTotal.Inc()
		}
		return err
	}); err != nil {
		return err
	}
	return m.checkpointAndTruncate()
}

func ddlName(c command.Command) string {
	switch c.Kind {
	case command.KindCreateTable:
		return "CREATE TABLE"
	case command.KindCreateIndex:
		return "CREATE INDEX"
	case command.KindDropIndex:
		return "DROP INDEX"
	case command.KindAlterTable:
		return "ALTER TABLE"
	default:
		return "DDL"
	}
}

// Execute runs one Command. BEGIN/COMMIT/ROLLBACK are handled here
// directly; everything else is dispatched to the query executor, with WAL
// bookkeeping layered around it depending on whether a transaction is
// active.
func (m *Manager) Execute(c command.Command) (query.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch c.Kind {
	case command.KindBegin:
		return m.begin()
	case command.KindCommit:
		return m.commit()
	case command.KindRollback:
		return m.rollback()
	}

	if m.current != nil {
		if c.IsDDL() {
			return query.Result{}, fmt.Errorf("%s is auto-commit and cannot run inside an active transaction", ddlName(c))
		}
		result, err := query.Execute(m.cat, m.eng, c)
		if err != nil {
			return result, err
		}
		if c.IsWrite() {
			m.current.staged = append(m.current.staged, c)
			m.current.touched[c.TableName()] = true
		}
		return result, nil
	}

	var snapCat *catalog.Catalog
	var snapEng storage.Engine
	if c.IsWrite() {
		snapCat, snapEng = m.cat.Clone(), m.eng.Clone()
	}
	result, err := query.Execute(m.cat, m.eng, c)
	if err != nil {
		if snapCat != nil {
			m.cat.ReplaceFrom(snapCat)
			m.eng.ReplaceFrom(snapEng)
		}
		return result, err
	}
	switch {
	case c.IsDDL():
		if err := m.cat.SaveToPath(catalogPath(m.baseDir)); err != nil {
			return result, err
		}
		if table := c.TableName(); table != "" {
			if err := m.eng.PersistTable(table); err != nil {
				return result, err
			}
		}
	case c.IsWrite():
		if err := constraints.ValidateNoActionConstraints(m.cat, m.eng); err != nil {
			m.cat.ReplaceFrom(snapCat)
			m.eng.ReplaceFrom(snapEng)
			return query.Result{}, err
		}
		txid := m.allocTxID()
		payload, err := command.Encode(c)
		if err != nil {
			return result, err
		}
		if err := m.wal.Append(FormatBegin(txid), FormatOp(txid, string(payload)), FormatCommit(txid)); err != nil {
			return result, err
		}
		if err := m.eng.PersistTable(c.TableName()); err != nil {
			return result, err
		}
		if err := m.checkpointAndTruncate(); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (m *Manager) begin() (query.Result, error) {
	if m.current != nil {
		return query.Result{}, ErrAlreadyActive
	}
	fp, err := Fingerprint(m.baseDir)
	if err != nil {
		return query.Result{}, err
	}
	m.current = &txState{
		txid:             m.allocTxID(),
		touched:          make(map[string]bool),
		snapCatalog:      m.cat.Clone(),
		snapStorage:      m.eng.Clone(),
		beginFingerprint: fp,
	}
	return query.Result{Message: "transaction started"}, nil
}

func (m *Manager) commit() (query.Result, error) {
	if m.current == nil {
		return query.Result{}, ErrNoActive
	}
	tx := m.current
	m.current = nil

	if len(tx.staged) == 0 {
		return query.Result{Message: "transaction committed"}, nil
	}

	fp, err := Fingerprint(m.baseDir)
	if err != nil {
		return query.Result{}, err
	}
	if fp != tx.beginFingerprint {
		m.reloadFromDisk()
		if m.metrics != nil {
			m.metrics.CommitConflictsTotal.Inc()
		}
		return query.Result{}, fmt.Errorf("%w: database was modified by another process since BEGIN", ErrConflict)
	}

	if err := constraints.ValidateNoActionConstraints(m.cat, m.eng); err != nil {
		m.cat.ReplaceFrom(tx.snapCatalog)
		m.eng.ReplaceFrom(tx.snapStorage)
		return query.Result{}, err
	}

	lines := []string{FormatBegin(tx.txid)}
	for _, op := range tx.staged {
		payload, err := command.Encode(op)
		if err != nil {
			return query.Result{}, err
		}
		lines = append(lines, FormatOp(tx.txid, string(payload)))
	}
	lines = append(lines, FormatCommit(tx.txid))
	if err := m.wal.Append(lines...); err != nil {
		return query.Result{}, err
	}
	for table := range tx.touched {
		if err := m.eng.PersistTable(table); err != nil {
			return query.Result{}, err
		}
	}
	if err := m.checkpointAndTruncate(); err != nil {
		return query.Result{}, err
	}
	return query.Result{Message: "transaction committed"}, nil
}

func (m *Manager) rollback() (query.Result, error) {
	if m.current == nil {
		return query.Result{}, ErrNoActive
	}
	tx := m.current
	m.current = nil
	m.cat.ReplaceFrom(tx.snapCatalog)
	m.eng.ReplaceFrom(tx.snapStorage)
	return query.Result{Message: "transaction rolled back"}, nil
}

// reloadFromDisk discards in-memory catalog/storage state and reloads both
// from the committed on-disk files, used after a commit-time conflict.
func (m *Manager) reloadFromDisk() {
	if cat, err := catalog.LoadFromPath(catalogPath(m.baseDir)); err == nil {
		m.cat.ReplaceFrom(cat)
		for _, table := range m.cat.TableNames() {
			schema, err := m.cat.Schema(table)
			if err != nil {
				continue
			}
			if err := m.eng.BootstrapTable(table, schema); err != nil {
				m.log.Warn("reload after conflict failed to bootstrap table", slog.String("table", table), slog.String("error", err.Error()))
			}
		}
	}
}
