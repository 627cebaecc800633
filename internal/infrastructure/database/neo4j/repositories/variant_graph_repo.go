package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/keyip-combinator/internal/config"
	"github.com/turtacn/keyip-combinator/internal/domain/enumeration"
	driver "github.com/turtacn/keyip-combinator/internal/infrastructure/database/neo4j"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
	"github.com/turtacn/keyip-combinator/pkg/types/common"
)

const defaultGraphBatch = 500

var schemaStatements = []string{
	`CREATE CONSTRAINT run_id IF NOT EXISTS FOR (r:Run) REQUIRE r.id IS UNIQUE`,
	`CREATE CONSTRAINT variant_key IF NOT EXISTS FOR (v:Variant) REQUIRE (v.run_id, v.idx) IS UNIQUE`,
	`CREATE INDEX atom_key IF NOT EXISTS FOR (a:Atom) ON (a.run_id, a.variant, a.pos)`,
}

const mergeRunCypher = `
	MERGE (r:Run {id: $id})
	SET r.skeleton = $skeleton, r.substituents = $substituents, r.mode = $mode,
		r.n = $n, r.status = $status, r.variant_count = $variant_count,
		r.created_at = $created_at`

const clearRunVariantsCypher = `
	MATCH (v:Variant {run_id: $run_id})
	OPTIONAL MATCH (v)-[:HAS_ATOM]->(a:Atom)
	DETACH DELETE a, v`

const createVariantsCypher = `
	MATCH (r:Run {id: $run_id})
	UNWIND $rows AS row
	CREATE (v:Variant {run_id: $run_id, idx: row.idx, smiles: row.smiles,
		sites: row.sites, assignment: row.assignment})
	CREATE (r)-[:HAS_VARIANT]->(v)
	WITH v, row
	UNWIND row.atoms AS atom
	CREATE (v)-[:HAS_ATOM]->(:Atom {run_id: $run_id, variant: row.idx, pos: atom.pos,
		atomic_number: atom.atomic_number, implicit_h: atom.implicit_h})`

const createBondsCypher = `
	UNWIND $bonds AS b
	MATCH (a1:Atom {run_id: $run_id, variant: b.variant, pos: b.a1})
	MATCH (a2:Atom {run_id: $run_id, variant: b.variant, pos: b.a2})
	CREATE (a1)-[:BOND {order: b.order}]->(a2)`

const createAromaticCypher = `
	UNWIND $bonds AS b
	MATCH (a1:Atom {run_id: $run_id, variant: b.variant, pos: b.a1})
	MATCH (a2:Atom {run_id: $run_id, variant: b.variant, pos: b.a2})
	CREATE (a1)-[:AROMATIC]->(a2)`

const countVariantsCypher = `MATCH (v:Variant {run_id: $run_id}) RETURN count(v) AS n`

const deleteRunCypher = `
	MATCH (r:Run {id: $run_id})
	OPTIONAL MATCH (r)-[:HAS_VARIANT]->(v:Variant)
	OPTIONAL MATCH (v)-[:HAS_ATOM]->(a:Atom)
	DETACH DELETE a, v, r`

// VariantGraphRepo stores each variant as (:Variant)-[:HAS_ATOM]->(:Atom)
// with BOND and AROMATIC relationships between the atoms, hung off a :Run
// node.
type VariantGraphRepo struct {
	driver    driver.DriverInterface
	batchSize int
	log       logging.Logger
}

var _ enumeration.VariantGraphRepository = (*VariantGraphRepo)(nil)

func NewVariantGraphRepo(d driver.DriverInterface, batchSize int, log logging.Logger) *VariantGraphRepo {
	if batchSize <= 0 {
		batchSize = defaultGraphBatch
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &VariantGraphRepo{driver: d, batchSize: batchSize, log: log}
}

func (r *VariantGraphRepo) Name() string { return config.SinkNeo4j }

// EnsureSchema creates the constraints and index the writes rely on.
func (r *VariantGraphRepo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		stmt := stmt
		if _, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
			_, err := tx.Run(ctx, stmt, nil)
			return nil, err
		}); err != nil {
			return err
		}
	}
	return nil
}

// Write replaces the run's graph.  The run node and the removal of earlier
// variants commit first; each batch of variants then commits on its own.
func (r *VariantGraphRepo) Write(ctx context.Context, run *enumeration.Run, variants []*enumeration.Variant) error {
	if err := run.Validate(); err != nil {
		return err
	}
	runID := run.ID.String()

	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		if _, err := tx.Run(ctx, mergeRunCypher, map[string]any{
			"id":            runID,
			"skeleton":      run.Skeleton,
			"substituents":  run.Substituents,
			"mode":          run.Mode,
			"n":             int64(run.N),
			"status":        string(run.Status),
			"variant_count": run.VariantCount,
			"created_at":    run.CreatedAt.Format(time.RFC3339Nano),
		}); err != nil {
			return nil, err
		}
		_, err := tx.Run(ctx, clearRunVariantsCypher, map[string]any{"run_id": runID})
		return nil, err
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSinkWriteFailed, "failed to store run node").
			WithDetail("run_id=" + runID)
	}

	for start := 0; start < len(variants); start += r.batchSize {
		end := start + r.batchSize
		if end > len(variants) {
			end = len(variants)
		}
		if err := r.writeBatch(ctx, runID, variants[start:end]); err != nil {
			return errors.Wrap(err, errors.ErrCodeSinkWriteFailed, "failed to store variant graphs").
				WithDetail(fmt.Sprintf("run_id=%s first_index=%d", runID, variants[start].Index))
		}
	}

	r.log.Debug("variant graphs stored",
		logging.String(logging.FieldRunID, runID),
		logging.Int("variants", len(variants)))
	return nil
}

func (r *VariantGraphRepo) writeBatch(ctx context.Context, runID string, batch []*enumeration.Variant) error {
	rows := make([]map[string]any, 0, len(batch))
	var bonds, aromatic []map[string]any
	for _, v := range batch {
		row := map[string]any{
			"idx":        int64(v.Index),
			"smiles":     v.SMILES,
			"sites":      toInt64s(v.Sites),
			"assignment": toInt64s(v.Assignment),
			"atoms":      []map[string]any{},
		}
		if c := v.Composite; c != nil {
			atoms := make([]map[string]any, len(c.AtomicNumbers))
			for i, z := range c.AtomicNumbers {
				var h int64
				if i < len(c.ImplicitHydrogens) {
					h = int64(c.ImplicitHydrogens[i])
				}
				atoms[i] = map[string]any{"pos": int64(i), "atomic_number": int64(z), "implicit_h": h}
			}
			row["atoms"] = atoms
			for _, b := range c.Bonds {
				bonds = append(bonds, map[string]any{
					"variant": int64(v.Index), "a1": int64(b.Atom1), "a2": int64(b.Atom2), "order": int64(b.Order),
				})
			}
			for _, b := range c.AromaticBonds {
				aromatic = append(aromatic, map[string]any{
					"variant": int64(v.Index), "a1": int64(b.Atom1), "a2": int64(b.Atom2),
				})
			}
		}
		rows = append(rows, row)
	}

	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		if _, err := tx.Run(ctx, createVariantsCypher, map[string]any{"run_id": runID, "rows": rows}); err != nil {
			return nil, err
		}
		if len(bonds) > 0 {
			if _, err := tx.Run(ctx, createBondsCypher, map[string]any{"run_id": runID, "bonds": bonds}); err != nil {
				return nil, err
			}
		}
		if len(aromatic) > 0 {
			if _, err := tx.Run(ctx, createAromaticCypher, map[string]any{"run_id": runID, "bonds": aromatic}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// CountVariants returns how many variant nodes the run has.
func (r *VariantGraphRepo) CountVariants(ctx context.Context, runID common.ID) (int64, error) {
	if err := runID.Validate(); err != nil {
		return 0, errors.Wrap(err, errors.CodeInvalidParam, "invalid run id")
	}
	res, err := r.driver.ExecuteRead(ctx, func(tx driver.Transaction) (any, error) {
		result, err := tx.Run(ctx, countVariantsCypher, map[string]any{"run_id": runID.String()})
		if err != nil {
			return nil, err
		}
		return driver.ExtractSingleRecord(ctx, result, func(rec *neo4j.Record) (int64, error) {
			n, _, err := neo4j.GetRecordValue[int64](rec, "n")
			return n, err
		})
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// DeleteRun removes the run node with its variants and atoms.
func (r *VariantGraphRepo) DeleteRun(ctx context.Context, runID common.ID) error {
	if err := runID.Validate(); err != nil {
		return errors.Wrap(err, errors.CodeInvalidParam, "invalid run id")
	}
	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		_, err := tx.Run(ctx, deleteRunCypher, map[string]any{"run_id": runID.String()})
		return nil, err
	})
	return err
}

func toInt64s(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

//Personal.AI order the ending
