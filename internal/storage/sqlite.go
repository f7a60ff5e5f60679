package storage

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/san-kum/orbitsim/internal/dynamo"
	"github.com/san-kum/orbitsim/internal/sim"
)

const schema = `
CREATE TABLE bodies (
	frame   INTEGER, -- kinematics id
	time    REAL,
	id      INTEGER, -- roster index
	name    TEXT,
	x       REAL,
	y       REAL,
	z       REAL,
	vx      REAL,
	vy      REAL,
	vz      REAL,
	mass    REAL,
	radius  REAL);
`

// Indices are built on Close; inserting into an unindexed table is faster.
const indices = `
CREATE INDEX idx_frame ON bodies (frame, id);
CREATE INDEX idx_id ON bodies (id);
`

const (
	insertBody = `INSERT INTO bodies VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	queryFrame = `SELECT id, name, x, y, z, vx, vy, vz, mass, radius FROM bodies WHERE frame = ? ORDER BY id ASC;`
	countRows  = `SELECT COUNT(DISTINCT frame) FROM bodies;`
)

// SQLiteRecorder writes every body of every frame it sees into an sqlite
// table, one transaction per batch of frames. SQLite allows one writer at a
// time, so writes are serialized.
type SQLiteRecorder struct {
	mu      sync.Mutex
	db      *sql.DB
	stmt    *sql.Stmt
	lastID  uint64
	written bool
	closed  bool
}

// OpenSQLite creates a new database at filename. An existing file is an
// error rather than something to append to.
func OpenSQLite(filename string) (*SQLiteRecorder, error) {
	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("storage: %s exists", filename)
	}
	db, err := sql.Open("sqlite3", "file:"+filename+"?_journal_mode=OFF&_synchronous=OFF")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	stmt, err := db.Prepare(insertBody)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteRecorder{db: db, stmt: stmt}, nil
}

func (r *SQLiteRecorder) Render(req sim.RenderRequest) error {
	return r.Record(req.Snapshot.Frames()...)
}

// Record inserts frames newer than the last one recorded.
func (r *SQLiteRecorder) Record(frames ...*dynamo.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	stmt := tx.Stmt(r.stmt)

	lastID, written := r.lastID, r.written
	for _, f := range frames {
		if written && f.KinematicsID() <= lastID {
			continue
		}
		for i, b := range f.Bodies() {
			_, err = stmt.Exec(
				f.KinematicsID(), f.Time(), i, b.Appearance.Name,
				b.Position[0], b.Position[1], b.Position[2],
				b.Velocity[0], b.Velocity[1], b.Velocity[2],
				b.Mass, b.Radius)
			if err != nil {
				tx.Rollback()
				return err
			}
		}
		lastID, written = f.KinematicsID(), true
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	r.lastID, r.written = lastID, written
	return nil
}

// Frames reports how many distinct frames are stored.
func (r *SQLiteRecorder) Frames() (int, error) {
	var n int
	err := r.db.QueryRow(countRows).Scan(&n)
	return n, err
}

// LoadFrame reads back the bodies stored for one kinematics id.
func (r *SQLiteRecorder) LoadFrame(frame uint64) ([]dynamo.Body, error) {
	rows, err := r.db.Query(queryFrame, frame)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bodies []dynamo.Body
	for rows.Next() {
		var (
			id int
			b  dynamo.Body
		)
		err := rows.Scan(&id, &b.Appearance.Name,
			&b.Position[0], &b.Position[1], &b.Position[2],
			&b.Velocity[0], &b.Velocity[1], &b.Velocity[2],
			&b.Mass, &b.Radius)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, b)
	}
	return bodies, rows.Err()
}

// Close builds the indices and closes the database.
func (r *SQLiteRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.closed = true

	r.stmt.Close()
	if _, err := r.db.Exec(indices); err != nil {
		r.db.Close()
		return err
	}
	return r.db.Close()
}
