package credential

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hitoshi/sheetgate/internal/model"
)

// CellRef はシート上のセル位置（0始まり）を表す。
type CellRef struct {
	Row int
	Col int
}

// デフォルトの参照セル（X2, Y2）。
var (
	DefaultIDCell     = CellRef{Row: 1, Col: 23}
	DefaultSecretCell = CellRef{Row: 1, Col: 24}
)

// ParseCellRef はA1形式（例: "X2"）のセル参照をパースする。
func ParseCellRef(a1 string) (CellRef, error) {
	s := strings.ToUpper(strings.TrimSpace(a1))

	i := 0
	col := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		col = col*26 + int(s[i]-'A'+1)
		i++
	}
	if i == 0 {
		return CellRef{}, fmt.Errorf("invalid cell reference %q: missing column letters", a1)
	}

	row, err := strconv.Atoi(s[i:])
	if err != nil || row < 1 {
		return CellRef{}, fmt.Errorf("invalid cell reference %q: missing or invalid row number", a1)
	}

	return CellRef{Row: row - 1, Col: col - 1}, nil
}

// String はA1形式の表記を返す。
func (c CellRef) String() string {
	var letters []byte
	for n := c.Col + 1; n > 0; n = (n - 1) / 26 {
		letters = append([]byte{byte('A' + (n-1)%26)}, letters...)
	}
	return fmt.Sprintf("%s%d", letters, c.Row+1)
}

// ParseRows はCSVテキストを行・セルに分割する。
// 改行（\n または \r\n）で行を、カンマでセルを分割し、
// 各セルから外側の引用符1組を外し、その後で前後の空白を取り除く。
// セル内のカンマや引用符のエスケープは扱わない。
func ParseRows(text string) [][]string {
	lines := strings.Split(text, "\n")
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		cells := strings.Split(line, ",")
		for i, cell := range cells {
			cells[i] = cleanCell(cell)
		}
		rows = append(rows, cells)
	}
	return rows
}

// cleanCell は外側の引用符1組を外してから前後の空白を取り除く。
// 引用符の外側に空白がある場合は引用符を残す。
func cleanCell(cell string) string {
	if len(cell) >= 2 && cell[0] == '"' && cell[len(cell)-1] == '"' {
		cell = cell[1 : len(cell)-1]
	}
	return strings.TrimSpace(cell)
}

// lookup は指定セルの値を返す。行・列が範囲外の場合は空文字列を返す。
func lookup(rows [][]string, ref CellRef) string {
	if ref.Row < 0 || ref.Row >= len(rows) {
		return ""
	}
	row := rows[ref.Row]
	if ref.Col < 0 || ref.Col >= len(row) {
		return ""
	}
	return row[ref.Col]
}

// ExtractRecord はパース済みの行から期待値の組を取り出す。
// 行が存在しない、またはいずれかのセルが空の場合はKindMissingFieldsのエラーを返す。
func ExtractRecord(rows [][]string, idCell, secretCell CellRef) (*model.CredentialRecord, error) {
	if idCell.Row >= len(rows) || secretCell.Row >= len(rows) {
		return nil, missingFields(fmt.Sprintf("row %d not found", idCell.Row+1))
	}

	id := lookup(rows, idCell)
	secret := lookup(rows, secretCell)
	if id == "" || secret == "" {
		return nil, missingFields(fmt.Sprintf("cells %s/%s not found or empty", idCell, secretCell))
	}

	return &model.CredentialRecord{
		ExpectedID:     id,
		ExpectedSecret: secret,
	}, nil
}
