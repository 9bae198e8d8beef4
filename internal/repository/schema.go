package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	jobsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "category", Type: field.TypeString},
		{Name: "qualifier", Type: field.TypeString, Default: ""},
		{Name: "sources", Type: field.TypeJSON},
		{Name: "params", Type: field.TypeJSON},
		{Name: "status", Type: field.TypeString},
		{Name: "user_id", Type: field.TypeString, Default: ""},
		{Name: "username", Type: field.TypeString, Default: ""},
		{Name: "user_name", Type: field.TypeString, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	jobsTable = &schema.Table{
		Name:       "jobs",
		Columns:    jobsColumns,
		PrimaryKey: []*schema.Column{jobsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "jobs_status", Columns: []*schema.Column{jobsColumns[5]}},
		},
	}

	attemptsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "job_id", Type: field.TypeString, Size: 36},
		{Name: "seq", Type: field.TypeInt},
		{Name: "kind", Type: field.TypeString},
		{Name: "status", Type: field.TypeString},
		{Name: "params", Type: field.TypeJSON},
		{Name: "record", Type: field.TypeJSON, Nullable: true},
		{Name: "raw_response", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "input_text", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "hs_code", Type: field.TypeString, Default: ""},
		{Name: "classification_warning", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "warnings", Type: field.TypeJSON},
		{Name: "error", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "error_code", Type: field.TypeString, Default: ""},
		{Name: "elapsed_ms", Type: field.TypeInt64},
		{Name: "user_id", Type: field.TypeString, Default: ""},
		{Name: "username", Type: field.TypeString, Default: ""},
		{Name: "user_name", Type: field.TypeString, Default: ""},
		{Name: "run_id", Type: field.TypeString, Default: ""},
		{Name: "started_at", Type: field.TypeTime},
		{Name: "finished_at", Type: field.TypeTime},
	}
	attemptsTable = &schema.Table{
		Name:       "attempts",
		Columns:    attemptsColumns,
		PrimaryKey: []*schema.Column{attemptsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "attempts_jobs_attempts",
				Columns:    []*schema.Column{attemptsColumns[1]},
				RefColumns: []*schema.Column{jobsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "attempts_job_id_seq", Unique: true, Columns: []*schema.Column{attemptsColumns[1], attemptsColumns[2]}},
		},
	}

	evaluationsColumns = []*schema.Column{
		{Name: "attempt_id", Type: field.TypeString, Size: 36},
		{Name: "job_id", Type: field.TypeString, Size: 36},
		{Name: "category", Type: field.TypeString},
		{Name: "structure", Type: field.TypeFloat64},
		{Name: "structure_reason", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "structure_method", Type: field.TypeString, Default: ""},
		{Name: "content", Type: field.TypeFloat64},
		{Name: "content_reason", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "content_method", Type: field.TypeString, Default: ""},
		{Name: "translation", Type: field.TypeFloat64},
		{Name: "translation_reason", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "translation_method", Type: field.TypeString, Default: ""},
		{Name: "composite", Type: field.TypeFloat64},
		{Name: "created_at", Type: field.TypeTime},
	}
	evaluationsTable = &schema.Table{
		Name:       "evaluations",
		Columns:    evaluationsColumns,
		PrimaryKey: []*schema.Column{evaluationsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "evaluations_attempts_evaluation",
				Columns:    []*schema.Column{evaluationsColumns[0]},
				RefColumns: []*schema.Column{attemptsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "evaluations_job_id", Columns: []*schema.Column{evaluationsColumns[1]}},
		},
	}

	tables = []*schema.Table{jobsTable, attemptsTable, evaluationsTable}
)

func init() {
	attemptsTable.ForeignKeys[0].RefTable = jobsTable
	evaluationsTable.ForeignKeys[0].RefTable = attemptsTable
}

// Migrate creates or updates the jobs, attempts and evaluations tables.
func (d *DB) Migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(d.drv)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Create(ctx, tables...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	d.logger.Info("database schema up to date", "tables", len(tables))
	return nil
}
