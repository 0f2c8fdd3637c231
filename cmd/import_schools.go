package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/db"
)

// schoolRow is one parsed roster record.
type schoolRow struct {
	SchoolID   string
	UUID       string
	Name       string
	Address    string
	City       string
	State      string
	Zip        string
	DataYear   int
	SchoolYear string
}

var importSchoolsCmd = &cobra.Command{
	Use:   "schools",
	Short: "Load the school roster from CSV",
	Long:  "Upserts schools and creates location and school-location rows for the roster's data year. Expected header: school_id,uuid,name,address,city,state,zip,data_year,school_year.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		csvPath, _ := cmd.Flags().GetString("csv")

		f, err := os.Open(csvPath)
		if err != nil {
			return eris.Wrapf(err, "import schools: open %s", csvPath)
		}
		defer f.Close() //nolint:errcheck

		records, err := parseSchoolCSV(f)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No rows to import")
			return nil
		}

		pg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()
		pool := pg.Pool()

		log := zap.L().With(zap.String("command", "import.schools"))
		log.Info("importing roster", zap.Int("rows", len(records)))

		upserted, err := upsertSchools(ctx, pool, records)
		if err != nil {
			return err
		}

		var located int
		for _, rec := range records {
			if err := linkSchoolLocation(ctx, pool, rec); err != nil {
				log.Warn("failed to link location",
					zap.String("school_id", rec.SchoolID),
					zap.Error(err),
				)
				continue
			}
			located++
		}

		fmt.Printf("Imported %d schools (%d upserted, %d locations linked)\n", len(records), upserted, located)
		return nil
	},
}

// parseSchoolCSV reads the roster, assigning UUIDs to rows without one.
func parseSchoolCSV(r io.Reader) ([]schoolRow, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "import schools: read header")
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"school_id", "name", "data_year"} {
		if _, ok := col[required]; !ok {
			return nil, eris.Errorf("import schools: missing column %q", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []schoolRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "import schools: read row")
		}

		dataYear, err := strconv.Atoi(field(record, "data_year"))
		if err != nil {
			return nil, eris.Wrapf(err, "import schools: bad data_year for school %s", field(record, "school_id"))
		}

		row := schoolRow{
			SchoolID:   field(record, "school_id"),
			UUID:       field(record, "uuid"),
			Name:       field(record, "name"),
			Address:    field(record, "address"),
			City:       field(record, "city"),
			State:      field(record, "state"),
			Zip:        field(record, "zip"),
			DataYear:   dataYear,
			SchoolYear: field(record, "school_year"),
		}
		if row.SchoolID == "" {
			return nil, eris.New("import schools: row with empty school_id")
		}
		if row.UUID == "" {
			row.UUID = uuid.NewString()
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func upsertSchools(ctx context.Context, pool db.Pool, records []schoolRow) (int64, error) {
	rows := make([][]any, len(records))
	for i, rec := range records {
		rows[i] = []any{rec.UUID, rec.SchoolID, rec.Name}
	}
	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        "edc.schools",
		Columns:      []string{"uuid", "school_id", "name"},
		ConflictKeys: []string{"school_id"},
		UpdateCols:   []string{"name"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "import schools: upsert schools")
	}
	return n, nil
}

// linkSchoolLocation creates the location row and marks it current for
// the roster's data year, retiring any previous current location.
func linkSchoolLocation(ctx context.Context, pool db.Pool, rec schoolRow) error {
	var schoolID int64
	if err := pool.QueryRow(ctx,
		"SELECT id FROM edc.schools WHERE school_id = $1", rec.SchoolID,
	).Scan(&schoolID); err != nil {
		return eris.Wrapf(err, "import schools: resolve school %s", rec.SchoolID)
	}

	var locationID int64
	if err := pool.QueryRow(ctx, `
		INSERT INTO edc.location_points (address, city, state, zip)
		VALUES (NULLIF($1, ''), NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''))
		RETURNING id
	`, rec.Address, rec.City, rec.State, rec.Zip).Scan(&locationID); err != nil {
		return eris.Wrapf(err, "import schools: insert location for school %s", rec.SchoolID)
	}

	if _, err := pool.Exec(ctx, `
		UPDATE edc.school_locations SET is_current = false
		WHERE school_id = $1 AND data_year = $2 AND is_current = true
	`, schoolID, rec.DataYear); err != nil {
		return eris.Wrapf(err, "import schools: retire locations for school %s", rec.SchoolID)
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO edc.school_locations (school_id, location_id, data_year, school_year, is_current)
		VALUES ($1, $2, $3, NULLIF($4, ''), true)
		ON CONFLICT (school_id, location_id, data_year) DO UPDATE SET is_current = true
	`, schoolID, locationID, rec.DataYear, rec.SchoolYear); err != nil {
		return eris.Wrapf(err, "import schools: link location for school %s", rec.SchoolID)
	}
	return nil
}

func init() {
	importSchoolsCmd.Flags().String("csv", "", "roster CSV path (required)")
	_ = importSchoolsCmd.MarkFlagRequired("csv")
	importCmd.AddCommand(importSchoolsCmd)
}
