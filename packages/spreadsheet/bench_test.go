package spreadsheet

import (
	"fmt"
	"testing"

	"github.com/vogtb/go-spreadsheet/packages/engine"
	"github.com/vogtb/go-spreadsheet/packages/value"
)

func newBench(b *testing.B, opts ...Option) *Spreadsheet {
	b.Helper()
	s, err := NewSpreadsheet(opts...)
	if err != nil {
		b.Fatal(err)
	}
	if err := s.AddWorksheet("Sheet1"); err != nil {
		b.Fatal(err)
	}
	return s
}

func mustSet(b *testing.B, s *Spreadsheet, address string, p Primitive) {
	if err := s.Set(address, p); err != nil {
		b.Fatalf("Set(%s): %v", address, err)
	}
}

func BenchmarkLargeCellPopulation(b *testing.B) {
	for i := 0; i < b.N; i++ {
		s := newBench(b)
		for row := 1; row <= 100; row++ {
			for col := 1; col <= 26; col++ {
				mustSet(b, s, fmt.Sprintf("Sheet1!%s%d", value.ColumnName(col), row), float64(row*col))
			}
		}
	}
}

func BenchmarkFormulaDependencyChain(b *testing.B) {
	s := newBench(b)
	mustSet(b, s, "Sheet1!A1", 1.0)
	for i := 2; i <= 100; i++ {
		mustSet(b, s, fmt.Sprintf("Sheet1!A%d", i), fmt.Sprintf("=A%d+1", i-1))
	}
	s.Calculate()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mustSet(b, s, "Sheet1!A1", float64(i))
		s.Calculate()
	}
}

func BenchmarkWideDependencyFanOut(b *testing.B) {
	for _, parallel := range []bool{false, true} {
		b.Run(fmt.Sprintf("parallel=%v", parallel), func(b *testing.B) {
			settings := engine.DefaultSettings()
			settings.Parallel = parallel
			s := newBench(b, WithSettings(settings))
			mustSet(b, s, "Sheet1!A1", 100.0)
			for i := 2; i <= 500; i++ {
				mustSet(b, s, fmt.Sprintf("Sheet1!B%d", i), "=A1*2")
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				mustSet(b, s, "Sheet1!A1", float64(i))
				s.Calculate()
			}
		})
	}
}

func BenchmarkLargeRangeSUM(b *testing.B) {
	s := newBench(b)
	for i := 1; i <= 1000; i++ {
		mustSet(b, s, fmt.Sprintf("Sheet1!A%d", i), float64(i))
	}
	mustSet(b, s, "Sheet1!B1", "=SUM(A1:A1000)")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mustSet(b, s, "Sheet1!A1", float64(i))
		s.Calculate()
	}
}

func BenchmarkComplexNestedFormulas(b *testing.B) {
	s := newBench(b)
	for i := 1; i <= 20; i++ {
		mustSet(b, s, fmt.Sprintf("Sheet1!A%d", i), float64(i))
		mustSet(b, s, fmt.Sprintf("Sheet1!B%d", i), float64(i*2))
	}
	mustSet(b, s, "Sheet1!C1", "=IF(AVERAGE(A1:A20)>10, SUM(B1:B20), MAX(A1:A20))")
	mustSet(b, s, "Sheet1!D1", "=ROUND(SQRT(C1)*PI(), 2)")
	mustSet(b, s, "Sheet1!E1", "=IF(D1>100, MEDIAN(A1:A20), MIN(B1:B20))")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mustSet(b, s, "Sheet1!A1", float64(i))
		s.Calculate()
	}
}

func BenchmarkVolatileFunctions(b *testing.B) {
	s := newBench(b)
	for i := 1; i <= 50; i++ {
		mustSet(b, s, fmt.Sprintf("Sheet1!A%d", i), "=RAND()")
		mustSet(b, s, fmt.Sprintf("Sheet1!B%d", i), fmt.Sprintf("=A%d*100", i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Calculate()
	}
}

func BenchmarkMultiWorksheetReferences(b *testing.B) {
	s := newBench(b)
	for _, name := range []string{"Data", "Summary"} {
		if err := s.AddWorksheet(name); err != nil {
			b.Fatal(err)
		}
	}
	for i := 1; i <= 100; i++ {
		mustSet(b, s, fmt.Sprintf("Data!A%d", i), float64(i))
	}
	mustSet(b, s, "Summary!A1", "=SUM(Data!A1:A100)")
	mustSet(b, s, "Summary!B1", "=AVERAGE(Data!A1:A100)")
	mustSet(b, s, "Summary!C1", "=MAX(Data!A1:A100)")
	mustSet(b, s, "Summary!D1", "=MIN(Data!A1:A100)")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mustSet(b, s, "Data!A50", float64(i))
		s.Calculate()
	}
}

func BenchmarkSharedFormulas(b *testing.B) {
	for _, share := range []bool{false, true} {
		b.Run(fmt.Sprintf("share=%v", share), func(b *testing.B) {
			settings := engine.DefaultSettings()
			settings.ShareFormulas = share
			for i := 0; i < b.N; i++ {
				s := newBench(b, WithSettings(settings))
				for row := 1; row <= 500; row++ {
					mustSet(b, s, fmt.Sprintf("B%d", row), "=SUM(A1:A10)*2")
				}
				s.Calculate()
			}
		})
	}
}

func BenchmarkCircularReferenceDetection(b *testing.B) {
	for i := 0; i < b.N; i++ {
		s := newBench(b)
		mustSet(b, s, "Sheet1!A1", "=B1+C1")
		mustSet(b, s, "Sheet1!B1", "=C1+D1")
		mustSet(b, s, "Sheet1!C1", "=D1+E1")
		mustSet(b, s, "Sheet1!D1", "=E1+F1")
		mustSet(b, s, "Sheet1!E1", "=F1+G1")
		mustSet(b, s, "Sheet1!F1", "=G1+H1")
		mustSet(b, s, "Sheet1!G1", "=H1+A1")
		mustSet(b, s, "Sheet1!H1", "=A1")
		s.Calculate()
	}
}

func BenchmarkStringConcatenation(b *testing.B) {
	s := newBench(b)
	for i := 1; i <= 100; i++ {
		mustSet(b, s, fmt.Sprintf("Sheet1!A%d", i), fmt.Sprintf("text%d", i))
		mustSet(b, s, fmt.Sprintf("Sheet1!B%d", i), fmt.Sprintf(`=A%d&"-suffix"`, i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mustSet(b, s, "Sheet1!A1", fmt.Sprintf("text%d", i))
		s.Calculate()
	}
}

func BenchmarkSpill(b *testing.B) {
	s := newBench(b)
	mustSet(b, s, "Sheet1!A1", 100.0)
	mustSet(b, s, "Sheet1!B1", "=SEQUENCE(A1,3)")
	mustSet(b, s, "Sheet1!F1", "=SUM(B1:D200)")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mustSet(b, s, "Sheet1!A1", float64(50+i%100))
		s.Calculate()
	}
}

func BenchmarkStructuralInsert(b *testing.B) {
	s := newBench(b)
	for row := 1; row <= 200; row++ {
		mustSet(b, s, fmt.Sprintf("A%d", row), float64(row))
		mustSet(b, s, fmt.Sprintf("B%d", row), fmt.Sprintf("=SUM($A$1:A%d)", row))
	}
	s.Calculate()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.InsertRows("Sheet1", 100, 1); err != nil {
			b.Fatal(err)
		}
		if err := s.DeleteRows("Sheet1", 100, 1); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDirtyPropagation(b *testing.B) {
	s := newBench(b)
	grid := 20
	for row := 1; row <= grid; row++ {
		for col := 1; col <= grid; col++ {
			addr := value.ColumnName(col) + fmt.Sprint(row)
			switch {
			case row == 1 && col == 1:
				mustSet(b, s, addr, 1.0)
			case row == 1:
				mustSet(b, s, addr, fmt.Sprintf("=%s%d+1", value.ColumnName(col-1), row))
			case col == 1:
				mustSet(b, s, addr, fmt.Sprintf("=%s%d+1", value.ColumnName(col), row-1))
			default:
				mustSet(b, s, addr, fmt.Sprintf("=%s%d+%s%d", value.ColumnName(col-1), row, value.ColumnName(col), row-1))
			}
		}
	}
	s.Calculate()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mustSet(b, s, "Sheet1!A1", float64(i%100))
		s.Calculate()
	}
}
