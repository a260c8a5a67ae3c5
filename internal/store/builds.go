package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/roach88/kiln/internal/compiler"
	"github.com/roach88/kiln/internal/dispatch"
	"github.com/roach88/kiln/internal/ir"
)

// buildNamespace scopes the name-based build ids.
var buildNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/roach88/kiln/builds"))

// Build is one recorded compilation. Binary fields are hex without 0x.
type Build struct {
	ID                 string `json:"id"`
	Contract           string `json:"contract"`
	Integrity          string `json:"integrity"`
	Settings           string `json:"settings"`
	RuntimeFingerprint string `json:"runtime_fingerprint"`
	Bytecode           string `json:"bytecode"`
	BytecodeRuntime    string `json:"bytecode_runtime"`
	Layout             string `json:"layout"`
	CompilerVersion    string `json:"compiler_version"`
	Seq                int64  `json:"seq"`
}

// Fingerprint is the registry's index key for runtime code.
func Fingerprint(runtime []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(runtime))
}

// settingsKey renders settings in a canonical form so spellings that
// select the same behavior ("size" and "codesize") share a key.
func settingsKey(s compiler.Settings) (string, error) {
	p, err := s.Policy()
	if err != nil {
		return "", err
	}
	canon := compiler.Settings{
		Optimize:       p.Objective.String(),
		Debug:          p.Debug,
		DenseThreshold: p.DenseThreshold,
	}
	if canon.DenseThreshold == 0 {
		canon.DenseThreshold = dispatch.DefaultDenseThreshold
	}
	data, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// NewBuild converts compiler artifacts into a registry row. ID and Seq
// are assigned by RecordBuild.
func NewBuild(a *compiler.Artifacts) (Build, error) {
	settings, err := settingsKey(a.Settings)
	if err != nil {
		return Build{}, fmt.Errorf("new build: %w", err)
	}
	layout, err := a.Output(compiler.OutputLayout)
	if err != nil {
		return Build{}, fmt.Errorf("new build: %w", err)
	}
	return Build{
		Contract:           a.Name,
		Integrity:          hex.EncodeToString(a.Build.Integrity[:]),
		Settings:           settings,
		RuntimeFingerprint: Fingerprint(a.Build.Runtime),
		Bytecode:           hex.EncodeToString(a.Build.Initcode),
		BytecodeRuntime:    hex.EncodeToString(a.Build.Runtime),
		Layout:             layout,
		CompilerVersion:    ir.Version,
	}, nil
}

// RecordBuild inserts b and returns its id.
// Uses ON CONFLICT DO NOTHING for idempotency - recording the same
// integrity and settings again returns the existing id and reports
// inserted as false.
func (s *Store) RecordBuild(ctx context.Context, b Build) (id string, inserted bool, err error) {
	id = uuid.NewSHA1(buildNamespace, []byte(b.Integrity+"\x00"+b.Settings)).String()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO builds
		(id, contract, integrity, settings, runtime_fingerprint, bytecode, bytecode_runtime, layout, compiler_version, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM builds))
		ON CONFLICT DO NOTHING
	`,
		id,
		b.Contract,
		b.Integrity,
		b.Settings,
		b.RuntimeFingerprint,
		b.Bytecode,
		b.BytecodeRuntime,
		b.Layout,
		b.CompilerVersion,
	)
	if err != nil {
		return "", false, fmt.Errorf("record build: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("record build: %w", err)
	}
	return id, n == 1, nil
}

const buildColumns = `id, contract, integrity, settings, runtime_fingerprint,
	bytecode, bytecode_runtime, layout, compiler_version, seq`

// buildOrder lists builds oldest first; equal seq values fall back to id
// in byte order.
const buildOrder = `ORDER BY seq ASC, id COLLATE BINARY ASC`

// LookupByIntegrity returns every build with the given integrity hash
// (hex, no 0x), oldest first.
func (s *Store) LookupByIntegrity(ctx context.Context, integrity string) ([]Build, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+buildColumns+`
		FROM builds
		WHERE integrity = ?
		`+buildOrder+`
	`, integrity)
	if err != nil {
		return nil, fmt.Errorf("lookup by integrity: %w", err)
	}
	return scanBuilds(rows)
}

// LookupByRuntime returns every build whose runtime code is exactly
// runtime, oldest first.
func (s *Store) LookupByRuntime(ctx context.Context, runtime []byte) ([]Build, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+buildColumns+`
		FROM builds
		WHERE runtime_fingerprint = ?
		`+buildOrder+`
	`, Fingerprint(runtime))
	if err != nil {
		return nil, fmt.Errorf("lookup by runtime: %w", err)
	}
	candidates, err := scanBuilds(rows)
	if err != nil {
		return nil, err
	}

	// The fingerprint only narrows the search.
	want := hex.EncodeToString(runtime)
	var out []Build
	for _, b := range candidates {
		if b.BytecodeRuntime == want {
			out = append(out, b)
		}
	}
	return out, nil
}

// ListBuilds returns the builds of one contract, oldest first.
func (s *Store) ListBuilds(ctx context.Context, contract string) ([]Build, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+buildColumns+`
		FROM builds
		WHERE contract = ?
		`+buildOrder+`
	`, contract)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	return scanBuilds(rows)
}

func scanBuilds(rows *sql.Rows) ([]Build, error) {
	defer rows.Close()

	var out []Build
	for rows.Next() {
		var b Build
		if err := rows.Scan(
			&b.ID,
			&b.Contract,
			&b.Integrity,
			&b.Settings,
			&b.RuntimeFingerprint,
			&b.Bytecode,
			&b.BytecodeRuntime,
			&b.Layout,
			&b.CompilerVersion,
			&b.Seq,
		); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}
	return out, nil
}
