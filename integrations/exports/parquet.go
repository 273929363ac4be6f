package exports

import (
	"fmt"
	"io"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"cdpchain/services/cdpd/indexer"
)

type parquetRow struct {
	Seq        int64  `parquet:"name=seq, type=INT64"`
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Position   string `parquet:"name=position, type=BYTE_ARRAY, convertedtype=UTF8"`
	Related    string `parquet:"name=related, type=BYTE_ARRAY, convertedtype=UTF8"`
	Account    string `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
	CreatedAt  string `parquet:"name=created_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ParquetWriter streams indexed events into a snappy compressed parquet file.
// Stop must be called to write the footer.
type ParquetWriter struct {
	pw   *writer.ParquetWriter
	rows int
}

func NewParquetWriter(w io.Writer) (*ParquetWriter, error) {
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(w), new(parquetRow), 1)
	if err != nil {
		return nil, fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	return &ParquetWriter{pw: pw}, nil
}

func (p *ParquetWriter) Write(rec indexer.EventRecord) error {
	attrs, err := attributesJSON(rec.Attributes)
	if err != nil {
		return err
	}
	row := &parquetRow{
		Seq:        int64(rec.Seq),
		ID:         rec.ID.String(),
		Type:       rec.Type,
		Position:   rec.Position,
		Related:    rec.Related,
		Account:    rec.Account,
		Attributes: attrs,
		CreatedAt:  formatTime(rec.CreatedAt),
	}
	if err := p.pw.Write(row); err != nil {
		return fmt.Errorf("exports: parquet write: %w", err)
	}
	p.rows++
	return nil
}

// Rows reports how many records were written.
func (p *ParquetWriter) Rows() int { return p.rows }

func (p *ParquetWriter) Stop() error {
	if err := p.pw.WriteStop(); err != nil {
		return fmt.Errorf("exports: parquet flush: %w", err)
	}
	return nil
}
