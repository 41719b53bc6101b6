package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/gemboard/sys"
)

// FileStore keeps the ledger in two JSON documents, rewritten whole on every
// save. Malformed documents load as empty.
type FileStore struct {
	LedgerPath string
	UsagePath  string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{
		LedgerPath: filepath.Join(dir, "reactions.json"),
		UsagePath:  filepath.Join(dir, "emoji_usage.json"),
	}
}

func (s *FileStore) LoadLedger() ([]Record, error) {
	data, err := os.ReadFile(s.LedgerPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.LedgerPath, err)
	}

	records, err := decodeRecords(data)
	if err != nil {
		sys.LogStore(sys.MsgStoreCorrupt, s.LedgerPath, err)
		return nil, nil
	}
	return records, nil
}

func (s *FileStore) SaveLedger(records []Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.LedgerPath, data)
}

func (s *FileStore) LoadUsage() (map[Key]Usage, error) {
	data, err := os.ReadFile(s.UsagePath)
	if errors.Is(err, fs.ErrNotExist) {
		return map[Key]Usage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.UsagePath, err)
	}

	usage := map[Key]Usage{}
	if err := json.Unmarshal(data, &usage); err != nil {
		sys.LogStore(sys.MsgStoreCorrupt, s.UsagePath, err)
		return map[Key]Usage{}, nil
	}
	return usage, nil
}

func (s *FileStore) SaveUsage(usage map[Key]Usage) error {
	data, err := json.MarshalIndent(usage, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.UsagePath, data)
}

// decodeRecords walks the top-level object by token so user order survives
// a restart.
func decodeRecords(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var records []Record
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		rawID, _ := tok.(string)
		id, err := snowflake.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("user id %q: %w", rawID, err)
		}

		var e Entry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("user %s: %w", rawID, err)
		}
		records = append(records, Record{UserID: id, Entry: e})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return records, nil
}

func encodeRecords(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		id, _ := json.Marshal(r.UserID.String())
		buf.Write(id)
		buf.WriteByte(':')

		entry := r.Entry
		if entry.Emojis == nil {
			entry.Emojis = map[Key]int{}
		}
		body, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", r.UserID, err)
		}
		buf.Write(body)
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
