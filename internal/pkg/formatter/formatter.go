package formatter

import (
	"fmt"

	"github.com/futig/wizard-backend/internal/entity"
)

type Formatter interface {
	Format(title, plainText string) ([]byte, error)
	ContentType() string
	FileExtension() string
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(format entity.ExportFormat) (Formatter, error) {
	switch format {
	case entity.ExportFormatMarkdown:
		return NewMarkdownFormatter(), nil
	case entity.ExportFormatDOCX:
		return NewDOCXFormatter(), nil
	case entity.ExportFormatPDF:
		return NewPDFFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
