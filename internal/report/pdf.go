package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/retaillens/internal/insights/domain"
)

var (
	headerCell = props.Text{Style: fontstyle.Bold, Size: 9}
	cell       = props.Text{Size: 9}
	numberCell = props.Text{Size: 9, Align: align.Right}
)

func renderPDF(w io.Writer, s Summary) error {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Sales summary", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	m.AddRow(10,
		col.New(12).Add(
			text.New("Generated: "+s.GeneratedAt.Format("2006-01-02 15:04 MST"), props.Text{Size: 9}),
			text.New("Period: "+period(s), props.Text{Size: 9, Top: 4}),
		),
	)

	section(m, "Key figures")
	m.AddRow(8,
		text.NewCol(6, "Metric", headerCell),
		text.NewCol(2, "Current", withRight(headerCell)),
		text.NewCol(2, "Previous", withRight(headerCell)),
		text.NewCol(2, "Change %", withRight(headerCell)),
	)
	for _, row := range []struct {
		label string
		value domain.KPIValue
	}{
		{"Total revenue", s.KPIs.TotalRevenue},
		{"Total orders", s.KPIs.TotalOrders},
		{"Average order value", s.KPIs.AvgOrderValue},
		{"Unique customers", s.KPIs.UniqueCustomers},
	} {
		delta := formatDelta(row.value.DeltaPct)
		if delta == "" {
			delta = "-"
		}
		m.AddRow(7,
			text.NewCol(6, row.label, cell),
			text.NewCol(2, row.value.Current.StringFixed(2), numberCell),
			text.NewCol(2, row.value.Previous.StringFixed(2), numberCell),
			text.NewCol(2, delta, numberCell),
		)
	}

	section(m, "Top products")
	m.AddRow(8,
		text.NewCol(2, "Stock code", headerCell),
		text.NewCol(4, "Description", headerCell),
		text.NewCol(2, "Revenue", withRight(headerCell)),
		text.NewCol(2, "Quantity", withRight(headerCell)),
		text.NewCol(2, "Orders", withRight(headerCell)),
	)
	for _, p := range s.TopProducts {
		m.AddRow(7,
			text.NewCol(2, p.StockCode, cell),
			text.NewCol(4, p.ProductName, cell),
			text.NewCol(2, p.Revenue.StringFixed(2), numberCell),
			text.NewCol(2, strconv.FormatInt(p.Quantity, 10), numberCell),
			text.NewCol(2, strconv.FormatInt(p.Orders, 10), numberCell),
		)
	}

	section(m, "Top countries")
	m.AddRow(8,
		text.NewCol(6, "Country", headerCell),
		text.NewCol(2, "Revenue", withRight(headerCell)),
		text.NewCol(2, "Orders", withRight(headerCell)),
		text.NewCol(2, "Customers", withRight(headerCell)),
	)
	for _, c := range s.TopCountries {
		m.AddRow(7,
			text.NewCol(6, c.Country, cell),
			text.NewCol(2, c.Revenue.StringFixed(2), numberCell),
			text.NewCol(2, strconv.FormatInt(c.Orders, 10), numberCell),
			text.NewCol(2, strconv.FormatInt(c.Customers, 10), numberCell),
		)
	}

	section(m, "Monthly revenue")
	for _, mr := range s.Monthly {
		m.AddRow(7,
			text.NewCol(6, monthLabel(mr), cell),
			text.NewCol(3, mr.Revenue.StringFixed(2), numberCell),
			text.NewCol(3, strconv.FormatInt(mr.Orders, 10)+" orders", numberCell),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return fmt.Errorf("generate pdf: %w", err)
	}
	_, err = w.Write(doc.GetBytes())
	return err
}

func section(m core.Maroto, title string) {
	m.AddRow(14,
		text.NewCol(12, title, props.Text{
			Size:  13,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)
}

func withRight(p props.Text) props.Text {
	p.Align = align.Right
	return p
}

func period(s Summary) string {
	start, end := s.Start, s.End
	if start == "" {
		start = "beginning"
	}
	if end == "" {
		end = "latest"
	}
	return start + " to " + end
}
