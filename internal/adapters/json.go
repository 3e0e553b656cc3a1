package adapters

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// NDJSONVersion is stamped into every NDJSON meta line.
const NDJSONVersion = "1"

// JSONAdapter writes the parse envelope and an NDJSON sidecar under
// the per-client output directory.
type JSONAdapter struct {
	OutputDir string
	Exports   []string // "envelope", "ndjson"
	Gzip      bool
	DropNulls bool
}

func (a *JSONAdapter) Export(exp *Export) []Result {
	exports := map[string]bool{}
	for _, name := range a.Exports {
		exports[strings.ToLower(strings.TrimSpace(name))] = true
	}
	if len(exports) == 0 {
		return nil
	}

	client := exp.ClientID
	if client == "" {
		client = "default"
	}
	targetDir := filepath.Join(a.OutputDir, client)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return []Result{{Adapter: "json", Status: StatusError, Reason: err.Error()}}
	}

	baseName := strings.TrimSuffix(filepath.Base(exp.Filename), filepath.Ext(exp.Filename))
	if baseName == "" {
		baseName = "data"
	}

	var results []Result

	if exports["envelope"] {
		results = append(results, a.writeEnvelope(targetDir, baseName, exp))
	}
	if exports["ndjson"] {
		results = append(results, a.writeNDJSON(targetDir, baseName, exp))
	}
	return results
}

func (a *JSONAdapter) writeEnvelope(targetDir, baseName string, exp *Export) Result {
	envelopePath := filepath.Join(targetDir, baseName+".json")
	raw, err := json.MarshalIndent(exp.Envelope, "", "  ")
	if err != nil {
		return Result{Adapter: "json", Status: StatusError, Reason: err.Error()}
	}
	if err := atomicWrite(envelopePath, raw); err != nil {
		return Result{Adapter: "json", Status: StatusError, Reason: err.Error()}
	}
	return Result{
		Adapter: "json",
		Status:  StatusOK,
		Artifacts: []Artifact{{
			Name:        "envelope",
			Path:        envelopePath,
			SizeBytes:   int64(len(raw)),
			ContentType: "application/json",
			Meta:        map[string]any{"rows": len(exp.Rows)},
		}},
	}
}

func (a *JSONAdapter) writeNDJSON(targetDir, baseName string, exp *Export) Result {
	ndjsonName := baseName + ".ndjson"
	contentType := "application/x-ndjson"
	if a.Gzip {
		ndjsonName += ".gz"
		contentType = "application/gzip"
	}
	ndjsonPath := filepath.Join(targetDir, ndjsonName)

	fieldMap := BuildFieldMap(exp.Schema.Columns)
	lines, contentHash, err := encodeRows(exp.Rows, fieldMap, a.DropNulls)
	if err != nil {
		return Result{Adapter: "ndjson", Status: StatusError, Reason: err.Error()}
	}

	createdAt := time.Now().UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
	meta := map[string]any{
		"type":              "meta",
		"client_id":         exp.ClientID,
		"source":            exp.Source,
		"filename":          exp.Filename,
		"rows":              len(exp.Rows),
		"schema":            exp.Schema,
		"notes":             exp.Notes,
		"created_at":        createdAt,
		"ndjson_version":    NDJSONVersion,
		"content_hash":      contentHash,
		"sanitized_columns": fieldMap,
	}
	metaLine, err := json.Marshal(meta)
	if err != nil {
		return Result{Adapter: "ndjson", Status: StatusError, Reason: err.Error()}
	}

	payload := append([]string{string(metaLine)}, lines...)
	body := []byte(strings.Join(payload, "\n") + "\n")
	if a.Gzip {
		body, err = gzipBytes(body)
		if err != nil {
			return Result{Adapter: "ndjson", Status: StatusError, Reason: err.Error()}
		}
	}
	if err := atomicWrite(ndjsonPath, body); err != nil {
		return Result{Adapter: "ndjson", Status: StatusError, Reason: err.Error()}
	}

	return Result{
		Adapter: "ndjson",
		Status:  StatusOK,
		Notes: []string{
			"ndjson_written",
			fmt.Sprintf("ndjson_gzip=%t", a.Gzip),
			"ndjson_sanitized",
		},
		Artifacts: []Artifact{{
			Name:        "ndjson",
			Path:        ndjsonPath,
			SizeBytes:   int64(len(body)),
			ContentType: contentType,
			Meta: map[string]any{
				"rows":              len(exp.Rows),
				"gzip":              a.Gzip,
				"content_hash":      contentHash,
				"created_at":        createdAt,
				"sanitized_columns": fieldMap,
			},
		}},
	}
}

// encodeRows renders each row as a compact JSON line with sanitized
// keys and hashes the rendered lines.
func encodeRows(rows []map[string]any, fieldMap map[string]string, dropNulls bool) ([]string, string, error) {
	lines := make([]string, 0, len(rows))
	digest := sha256.New()
	for _, row := range rows {
		mapped := make(map[string]any, len(row))
		for key, value := range row {
			if dropNulls && value == nil {
				continue
			}
			target, ok := fieldMap[key]
			if !ok {
				target = SanitizeFieldName(key)
			}
			mapped[target] = value
		}
		line, err := json.Marshal(mapped)
		if err != nil {
			return nil, "", err
		}
		lines = append(lines, string(line))
		digest.Write(line)
		digest.Write([]byte("\n"))
	}
	return lines, hex.EncodeToString(digest.Sum(nil)), nil
}

func gzipBytes(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(body); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// atomicWrite lands the payload under a temp name and renames it into
// place so readers never observe a partial file.
func atomicWrite(path string, payload []byte) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if _, err := file.Write(payload); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
