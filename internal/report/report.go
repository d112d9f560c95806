// Package report renders final account statements.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/Aidin1998/payments_engine/pkg/models"
	"github.com/Aidin1998/payments_engine/pkg/money"
)

// header mirrors the input convention: column names first
var header = []string{"client", "available", "held", "total", "locked"}

func row(st models.Statement) []string {
	return []string{
		strconv.FormatUint(uint64(st.Client), 10),
		money.Format(st.Available),
		money.Format(st.Held),
		money.Format(st.Total),
		strconv.FormatBool(st.Locked),
	}
}

// WriteCSV renders statements as CSV. Rows arrive sorted by client id,
// so the output is deterministic for a given final state.
func WriteCSV(w io.Writer, stmts []models.Statement) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, st := range stmts {
		if err := cw.Write(row(st)); err != nil {
			return fmt.Errorf("write statement for client %d: %w", st.Client, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// RenderTable prints statements as a terminal table, frozen accounts
// in red
func RenderTable(stmts []models.Statement) error {
	data := pterm.TableData{header}

	for _, st := range stmts {
		cells := row(st)
		if st.Locked {
			for i, cell := range cells {
				cells[i] = pterm.Red(cell)
			}
		}
		data = append(data, cells)
	}

	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
