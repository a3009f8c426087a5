package sheet

import (
	"context"
)

type ParsingStrategy interface {
	Parse(ctx context.Context, data []byte) ([]CellRow, error)
	Validate(ctx context.Context, rows []CellRow) error
}

type ExcelStrategy struct {
	parser    *Parser
	validator *Validator
}

func NewExcelStrategy(maxRows int) ParsingStrategy {
	return &ExcelStrategy{
		parser:    NewParser(maxRows),
		validator: NewValidator(),
	}
}

func (s *ExcelStrategy) Parse(ctx context.Context, data []byte) ([]CellRow, error) {
	return s.parser.Parse(ctx, data)
}

func (s *ExcelStrategy) Validate(ctx context.Context, rows []CellRow) error {
	return s.validator.Validate(ctx, rows)
}
