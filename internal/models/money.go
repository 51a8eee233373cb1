package models

import (
	"fmt"

	"github.com/eddiefleurent/scranton_condor/internal/util"
)

// Money is a ledger numeric cell. It reads currency-decorated values
// ("$1,234.50") and always writes plain two-decimal text.
type Money float64

// MarshalCSV implements gocsv.TypeMarshaller.
func (m Money) MarshalCSV() (string, error) {
	return util.FormatMoney(float64(m)), nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller. A blank cell reads as zero.
func (m *Money) UnmarshalCSV(s string) error {
	v, _, err := util.ParseMoney(s)
	if err != nil {
		return err
	}
	*m = Money(v)
	return nil
}

// NullMoney is a numeric cell that may legitimately be blank, such as the
// exit P/L of a position that is still open.
type NullMoney struct {
	Value float64
	Valid bool
}

// NewNullMoney returns a valid NullMoney holding v.
func NewNullMoney(v float64) NullMoney {
	return NullMoney{Value: v, Valid: true}
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (n NullMoney) MarshalCSV() (string, error) {
	if !n.Valid {
		return "", nil
	}
	return util.FormatMoney(n.Value), nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (n *NullMoney) UnmarshalCSV(s string) error {
	v, ok, err := util.ParseMoney(s)
	if err != nil {
		return err
	}
	n.Value, n.Valid = v, ok
	return nil
}

func (n NullMoney) String() string {
	if !n.Valid {
		return "-"
	}
	return fmt.Sprintf("%.2f", n.Value)
}
