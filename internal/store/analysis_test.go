package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"gazeta/internal/model"
)

func concursoRows(jobID, hash string, gazetteID uuid.UUID) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "analysis_job_id", "finding_hash", "gazette_id", "territory_id", "document_type",
		"confidence", "orgao", "edital_numero", "total_vagas", "cargos", "datas", "taxas",
		"banca", "extraction_method", "created_at",
	}).AddRow(uuid.New(), jobID, hash, gazetteID, "2900306", "edital_abertura",
		0.95, "PREFEITURA MUNICIPAL DE ACAJUTIBA", "01/2024", 15,
		[]byte(`["Professor"]`), []byte(`{}`), []byte(`[]`), "ibfc", "regex", now)
}

func TestInsertConcursoFindingCreates(t *testing.T) {
	st, mock := newMockStore(t)
	gazetteID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO concurso_findings")).
		WithArgs(sqlmock.AnyArg(), "analysis-abcd1234abcd1234", "hash-1", gazetteID, "2900306",
			sqlmock.AnyArg(), 0.95, sqlmock.AnyArg(), sqlmock.AnyArg(), 15,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(concursoRows("analysis-abcd1234abcd1234", "hash-1", gazetteID))

	cf, created, err := st.InsertConcursoFinding(context.Background(),
		"analysis-abcd1234abcd1234", "hash-1", gazetteID, "2900306", 0.95,
		model.ConcursoData{Orgao: "PREFEITURA MUNICIPAL DE ACAJUTIBA", EditalNumero: "01/2024", TotalVagas: 15})
	if err != nil {
		t.Fatalf("InsertConcursoFinding: %v", err)
	}
	if !created {
		t.Error("expected created=true for a fresh finding")
	}
	if cf.FindingHash != "hash-1" {
		t.Errorf("findingHash = %q", cf.FindingHash)
	}
	expectations(t, mock)
}

func TestInsertConcursoFindingDuplicateReturnsSurvivor(t *testing.T) {
	st, mock := newMockStore(t)
	gazetteID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO concurso_findings")).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectQuery(regexp.QuoteMeta("WHERE analysis_job_id = $1 AND finding_hash = $2")).
		WithArgs("analysis-abcd1234abcd1234", "hash-1").
		WillReturnRows(concursoRows("analysis-abcd1234abcd1234", "hash-1", gazetteID))

	cf, created, err := st.InsertConcursoFinding(context.Background(),
		"analysis-abcd1234abcd1234", "hash-1", gazetteID, "2900306", 0.95, model.ConcursoData{})
	if err != nil {
		t.Fatalf("InsertConcursoFinding: %v", err)
	}
	if created {
		t.Error("re-inserting the same finding hash must not create a row")
	}
	if cf.EditalNumero.String != "01/2024" {
		t.Errorf("survivor edital = %q", cf.EditalNumero.String)
	}
	expectations(t, mock)
}
