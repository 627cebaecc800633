package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/keyip-combinator/internal/domain/enumeration"
	pkgerrors "github.com/turtacn/keyip-combinator/pkg/errors"
	"github.com/turtacn/keyip-combinator/pkg/types/common"
)

// passthrough hands slices to the mock unchanged, as pgx accepts them.
type passthrough struct{}

func (passthrough) ConvertValue(v interface{}) (driver.Value, error) { return v, nil }

type RunRepositoryTestSuite struct {
	suite.Suite
	db   *sql.DB
	mock sqlmock.Sqlmock
	repo *RunRepository
	run  *enumeration.Run
}

func (s *RunRepositoryTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New(sqlmock.ValueConverterOption(passthrough{}))
	s.Require().NoError(err)
	s.repo = NewRunRepository(NewConnectionWithDB(s.db, nil), nil)

	s.run = enumeration.NewRun("c1ccccc1", []string{"Br", "CC"}, "single", 1)
	s.run.Complete(2)
}

func (s *RunRepositoryTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *RunRepositoryTestSuite) variants() []*enumeration.Variant {
	return []*enumeration.Variant{
		{RunID: s.run.ID, Index: 0, SMILES: "Brc1ccccc1", Sites: []int{0}, Assignment: []int{0}},
		{RunID: s.run.ID, Index: 1, SMILES: "CCc1ccccc1", Sites: []int{0}, Assignment: []int{1}},
		{RunID: s.run.ID, Index: 2, SMILES: "c1ccccc1"},
	}
}

func (s *RunRepositoryTestSuite) expectRunInsert() {
	s.mock.ExpectExec("INSERT INTO enumeration_runs").
		WithArgs(
			s.run.ID.String(), "c1ccccc1", []string{"Br", "CC"}, "single", 1, false, false,
			"completed", int64(2), "", sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func (s *RunRepositoryTestSuite) TestName() {
	s.Equal("postgres", s.repo.Name())
}

func (s *RunRepositoryTestSuite) TestWrite_Success() {
	id := s.run.ID.String()
	s.mock.ExpectBegin()
	s.expectRunInsert()
	s.mock.ExpectExec("DELETE FROM variants").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectExec(`INSERT INTO variants \(run_id, idx, smiles, sites, assignment\) VALUES \(\$1,\$2,\$3,\$4,\$5\),\(\$6`).
		WithArgs(
			id, 0, "Brc1ccccc1", []int{0}, []int{0},
			id, 1, "CCc1ccccc1", []int{0}, []int{1},
			id, 2, "c1ccccc1", []int{}, []int{},
		).
		WillReturnResult(sqlmock.NewResult(0, 3))
	s.mock.ExpectCommit()

	s.NoError(s.repo.Write(context.Background(), s.run, s.variants()))
}

func (s *RunRepositoryTestSuite) TestWrite_ChunksVariants() {
	s.repo = NewRunRepository(NewConnectionWithDB(s.db, nil), nil, WithVariantBatch(2))
	id := s.run.ID.String()

	s.mock.ExpectBegin()
	s.expectRunInsert()
	s.mock.ExpectExec("DELETE FROM variants").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectExec("INSERT INTO variants").
		WithArgs(id, 0, "Brc1ccccc1", []int{0}, []int{0}, id, 1, "CCc1ccccc1", []int{0}, []int{1}).
		WillReturnResult(sqlmock.NewResult(0, 2))
	s.mock.ExpectExec("INSERT INTO variants").
		WithArgs(id, 2, "c1ccccc1", []int{}, []int{}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	s.NoError(s.repo.Write(context.Background(), s.run, s.variants()))
}

func (s *RunRepositoryTestSuite) TestWrite_NoVariants() {
	s.mock.ExpectBegin()
	s.expectRunInsert()
	s.mock.ExpectExec("DELETE FROM variants").WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectCommit()

	s.NoError(s.repo.Write(context.Background(), s.run, nil))
}

func (s *RunRepositoryTestSuite) TestWrite_RollsBackOnFailure() {
	s.mock.ExpectBegin()
	s.expectRunInsert()
	s.mock.ExpectExec("DELETE FROM variants").WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectExec("INSERT INTO variants").WillReturnError(errors.New("disk full"))
	s.mock.ExpectRollback()

	err := s.repo.Write(context.Background(), s.run, s.variants())
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeSinkWriteFailed))
}

func (s *RunRepositoryTestSuite) TestWrite_BeginFails() {
	s.mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	err := s.repo.Write(context.Background(), s.run, s.variants())
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeSinkWriteFailed))
}

func (s *RunRepositoryTestSuite) TestWrite_InvalidRun() {
	s.run.Substituents = nil
	err := s.repo.Write(context.Background(), s.run, nil)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeSubstituentListEmpty))
}

func (s *RunRepositoryTestSuite) TestGetRun_Found() {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	finished := created.Add(time.Second)
	id := s.run.ID

	s.mock.ExpectQuery("SELECT (.+) FROM enumeration_runs WHERE id").
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "skeleton", "substituents", "mode", "n", "carbon_only", "unique_smiles",
			"status", "variant_count", "error", "created_at", "finished_at",
		}).AddRow(
			id.String(), "c1ccccc1", "{Br,CC}", "general", int64(2), true, false,
			"completed", int64(9), "", created, finished,
		))

	run, err := s.repo.GetRun(context.Background(), id)
	s.Require().NoError(err)
	s.Equal(id, run.ID)
	s.Equal([]string{"Br", "CC"}, run.Substituents)
	s.Equal("general", run.Mode)
	s.Equal(2, run.N)
	s.True(run.CarbonOnly)
	s.Equal(enumeration.RunStatusCompleted, run.Status)
	s.Equal(int64(9), run.VariantCount)
	s.Require().NotNil(run.FinishedAt)
	s.Equal(finished, *run.FinishedAt)
}

func (s *RunRepositoryTestSuite) TestGetRun_NotFound() {
	s.mock.ExpectQuery("SELECT (.+) FROM enumeration_runs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.repo.GetRun(context.Background(), s.run.ID)
	s.True(pkgerrors.IsNotFound(err))
}

func (s *RunRepositoryTestSuite) TestGetRun_InvalidID() {
	_, err := s.repo.GetRun(context.Background(), common.ID("nope"))
	s.True(pkgerrors.IsCode(err, pkgerrors.CodeInvalidParam))
}

func (s *RunRepositoryTestSuite) TestListVariants() {
	id := s.run.ID
	s.mock.ExpectQuery("SELECT (.+) FROM variants WHERE run_id").
		WithArgs(id.String(), 100, 0).
		WillReturnRows(sqlmock.NewRows([]string{"idx", "smiles", "sites", "assignment"}).
			AddRow(int64(0), "BrC(Br)C", "{0,1}", "{0,0}").
			AddRow(int64(1), "CC", "{}", "{}"))

	got, err := s.repo.ListVariants(context.Background(), id, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(id, got[0].RunID)
	s.Equal([]int{0, 1}, got[0].Sites)
	s.Equal([]int{0, 0}, got[0].Assignment)
	s.Equal("CC", got[1].SMILES)
	s.Empty(got[1].Sites)
}

func (s *RunRepositoryTestSuite) TestListVariants_ClampsLimit() {
	s.mock.ExpectQuery("FROM variants").
		WithArgs(s.run.ID.String(), maxListLimit, 20).
		WillReturnRows(sqlmock.NewRows([]string{"idx", "smiles", "sites", "assignment"}))

	got, err := s.repo.ListVariants(context.Background(), s.run.ID, 1<<20, 20)
	s.NoError(err)
	s.Empty(got)
}

func (s *RunRepositoryTestSuite) TestListVariants_NegativeOffset() {
	_, err := s.repo.ListVariants(context.Background(), s.run.ID, 10, -1)
	s.True(pkgerrors.IsCode(err, pkgerrors.CodeInvalidParam))
}

func TestRunRepositorySuite(t *testing.T) {
	suite.Run(t, new(RunRepositoryTestSuite))
}

//Personal.AI order the ending
