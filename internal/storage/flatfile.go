// internal/storage/flatfile.go
//
// 純文字檔的低階 I/O：
//   - writeAtomic：「同目錄暫存檔 → fsync → rename → fsync 目錄」，
//     中途當機時讀者只會看到完整的舊檔或完整的新檔。
//   - appendRows：O_APPEND 一次寫入整批資料後 fsync；失敗時截回原長度。
//   - readRows：逐行解析，壞行交給呼叫端記錄後略過，不中斷載入。
package storage

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const maxLineBytes = 1 << 20

// encodeRows 以 csv 規則輸出；含逗號或引號的欄位會被加上引號。
func encodeRows(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeAtomic 整份取代 path 的內容。
func writeAtomic(path string, rows [][]string) error {
	data, err := encodeRows(rows)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	// rename 成功後 tmpName 已不存在，Remove 會回錯，忽略即可
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

// syncDir 讓 rename 本身落盤；部分平台不支援對目錄 fsync，失敗時略過。
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}

// syncFile 可在測試中替換，模擬 fsync 失敗。
var syncFile = func(f *os.File) error { return f.Sync() }

// appendRows 把整批資料一次追加到檔尾。
// 若前一次寫入在行中斷掉（檔尾沒有換行），先補一個換行，避免新資料黏在半行後面一起變成壞行。
// 寫入或 fsync 失敗時把檔案截回追加前的長度，呼叫端回滾後不會留下孤兒紀錄。
func appendRows(path string, rows [][]string) error {
	data, err := encodeRows(rows)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	size := st.Size()
	if torn, err := missingTrailingNewline(f, size); err != nil {
		f.Close()
		return err
	} else if torn {
		data = append([]byte{'\n'}, data...)
	}
	if _, err := f.Write(data); err != nil {
		return undoAppend(f, size, err)
	}
	if err := syncFile(f); err != nil {
		return undoAppend(f, size, err)
	}
	return f.Close()
}

// undoAppend 截掉這次追加的內容並關檔；截斷本身失敗時兩個錯誤一起回報。
func undoAppend(f *os.File, size int64, cause error) error {
	var terr error
	if err := f.Truncate(size); err != nil {
		terr = fmt.Errorf("truncate after failed append: %w", err)
	} else {
		_ = f.Sync()
	}
	f.Close()
	return errors.Join(cause, terr)
}

func missingTrailingNewline(f *os.File, size int64) (bool, error) {
	if size == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

// readRows 逐行讀取 path。檔案不存在視為空檔。
// parse 回傳錯誤（或該行不是合法 csv）時呼叫 bad，然後繼續下一行。
func readRows(path string, parse func(fields []string) error, bad func(line int, err error)) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return scanRows(f, parse, bad)
}

func scanRows(r io.Reader, parse func(fields []string) error, bad func(line int, err error)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		cr := csv.NewReader(strings.NewReader(text))
		cr.FieldsPerRecord = -1
		fields, err := cr.Read()
		if err != nil {
			bad(line, fmt.Errorf("%w: %v", ErrMalformedRecord, err))
			continue
		}
		if err := parse(fields); err != nil {
			bad(line, err)
		}
	}
	return sc.Err()
}

// removeStaleTemps 清掉上次當機遺留的暫存檔；它們從未被 rename，不含有效資料。
func removeStaleTemps(path string) error {
	matches, err := filepath.Glob(path + ".tmp-*")
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
