package report

import (
	"encoding/csv"
	"io"
	"strconv"
)

var csvHeader = []string{
	"Product Name", "Product ID/SKU", "URL", "Word Count",
	"Price", "Currency", "Reading Ease", "Sentiment", "Image Score", "Spec Completeness",
}

type csvRenderer struct{}

func (csvRenderer) render(w io.Writer, v *view) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range v.Products {
		row := []string{orDefault(p.Name, "Unknown"), orNA(p.SKU), p.URL, "N/A", "N/A", "", "N/A", "N/A", strconv.Itoa(p.Images.Score), "N/A"}
		if d := p.Description; d != nil {
			row[3] = strconv.Itoa(d.WordCount)
			row[6] = strconv.FormatFloat(d.ReadingEase, 'f', 2, 64)
			row[7] = d.Sentiment
		}
		if pr := p.Price; pr != nil {
			if pr.Numeric != nil {
				row[4] = strconv.FormatFloat(*pr.Numeric, 'f', 2, 64)
			} else {
				row[4] = orNA(pr.Raw)
			}
			row[5] = pr.Currency
		}
		if s := p.Specs; s != nil {
			row[9] = strconv.FormatFloat(s.Completeness, 'f', 0, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
