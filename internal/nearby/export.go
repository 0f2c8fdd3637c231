package nearby

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
)

// ExportCSV writes the epoch's relationships to w as CSV with a header
// row. Returns the number of data rows written.
func ExportCSV(ctx context.Context, store Store, dataYear int, w io.Writer) (int, error) {
	rows, err := store.ExportRows(ctx, dataYear)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	header := []string{"location_id", "drive_time", "data_year", "school_uuid", "relationship_type", "processed_at"}
	if err := cw.Write(header); err != nil {
		return 0, eris.Wrap(err, "nearby: write csv header")
	}

	for _, r := range rows {
		record := []string{
			strconv.FormatInt(r.LocationID, 10),
			strconv.Itoa(r.DriveTime),
			strconv.Itoa(r.DataYear),
			r.SchoolUUID,
			r.Type,
			r.ProcessedAt,
		}
		if err := cw.Write(record); err != nil {
			return 0, eris.Wrap(err, "nearby: write csv row")
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, eris.Wrap(err, "nearby: flush csv")
	}
	return len(rows), nil
}
