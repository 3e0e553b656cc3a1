package intake

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store persists receipts as one JSON file per intake plus a per-client
// NDJSON index. All writes to a client's index happen under that
// client's lock; index rewrites are atomic (temp file + rename).
type Store struct {
	outputDir string

	mu          sync.Mutex
	locks       map[string]*sync.Mutex
	idempotency map[string]string   // client + key -> receipt path
	inflight    map[string]*Receipt // reserved keys awaiting their first write
}

func NewStore(outputDir string) *Store {
	return &Store{
		outputDir:   outputDir,
		locks:       map[string]*sync.Mutex{},
		idempotency: map[string]string{},
		inflight:    map[string]*Receipt{},
	}
}

type indexEntry struct {
	IntakeID       string   `json:"intake_id"`
	ClientID       string   `json:"client_id"`
	PresetID       string   `json:"preset_id,omitempty"`
	Status         string   `json:"status"`
	Confidence     *float64 `json:"confidence"`
	ReceivedAt     string   `json:"received_at"`
	Filename       string   `json:"filename,omitempty"`
	IdempotencyKey string   `json:"idempotency_key"`
	ReceiptPath    string   `json:"receipt_path"`
	RuleApplied    string   `json:"rule_applied,omitempty"`
	Notes          []string `json:"notes"`
}

func clientOrDefault(clientID string) string {
	if clientID == "" {
		return "default"
	}
	return clientID
}

func (s *Store) clientLock(clientID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	client := clientOrDefault(clientID)
	lock, ok := s.locks[client]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[client] = lock
	}
	return lock
}

func (s *Store) clientRoot(clientID string) string {
	return filepath.Join(s.outputDir, clientOrDefault(clientID))
}

func (s *Store) indexPath(clientID string) string {
	return filepath.Join(s.clientRoot(clientID), "receipts", "index.ndjson")
}

// IntakeDir returns (and creates) the artifact directory of one intake.
func (s *Store) IntakeDir(clientID, intakeID string) (string, error) {
	dir := filepath.Join(s.clientRoot(clientID), "intakes", intakeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// ReceiptPath is where the receipt of one intake lives.
func (s *Store) ReceiptPath(clientID, intakeID string) string {
	return filepath.Join(s.clientRoot(clientID), "intakes", intakeID, "receipt.json")
}

// StoreSource writes the uploaded bytes (and, for JSON intakes, the
// request metadata) into the intake directory and returns the artifact
// paths.
func (s *Store) StoreSource(clientID, intakeID, filename string, fileBytes []byte, metadata any) (map[string]string, error) {
	dir, err := s.IntakeDir(clientID, intakeID)
	if err != nil {
		return nil, err
	}
	safeName := filepath.Base(filename)
	if safeName == "" || safeName == "." || safeName == string(filepath.Separator) {
		safeName = "source.bin"
	}
	sourcePath := filepath.Join(dir, safeName)
	if err := os.WriteFile(sourcePath, fileBytes, 0o644); err != nil {
		return nil, err
	}
	artifacts := map[string]string{"source": sourcePath}
	if metadata != nil {
		raw, err := json.MarshalIndent(metadata, "", "  ")
		if err != nil {
			return nil, err
		}
		requestPath := filepath.Join(dir, "request.json")
		if err := os.WriteFile(requestPath, raw, 0o644); err != nil {
			return nil, err
		}
		artifacts["request"] = requestPath
	}
	return artifacts, nil
}

// ReserveIdempotency claims an idempotency key for the pending receipt
// before any artifact exists on disk. When another intake already holds
// the key it returns that intake's receipt and false, so concurrent
// duplicates all observe the same intake id. The check and the claim
// happen under one lock.
func (s *Store) ReserveIdempotency(clientID, idempotencyKey string, pending *Receipt) (*Receipt, bool) {
	ck := cacheKey(clientID, idempotencyKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	if path, claimed := s.idempotency[ck]; claimed {
		if held := s.inflight[ck]; held != nil {
			dup := *held
			return &dup, false
		}
		if receipt := readReceiptFile(path); receipt != nil {
			return receipt, false
		}
		// stale claim with no receipt behind it: fall through and reclaim
	}
	for _, entry := range s.loadIndex(clientID) {
		if entry.IdempotencyKey != idempotencyKey {
			continue
		}
		if receipt := readReceiptFile(entry.ReceiptPath); receipt != nil {
			s.idempotency[ck] = entry.ReceiptPath
			return receipt, false
		}
	}

	s.idempotency[ck] = s.ReceiptPath(clientID, pending.IntakeID)
	held := *pending
	s.inflight[ck] = &held
	return nil, true
}

// ReleaseIdempotency drops a reservation that never produced a receipt,
// typically after a storage failure. A claim held by a different intake
// id is left alone.
func (s *Store) ReleaseIdempotency(clientID, idempotencyKey, intakeID string) {
	ck := cacheKey(clientID, idempotencyKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idempotency[ck] == s.ReceiptPath(clientID, intakeID) {
		delete(s.idempotency, ck)
		delete(s.inflight, ck)
	}
}

// SaveReceipt writes the receipt file and upserts the client index
// entry keyed by intake id.
func (s *Store) SaveReceipt(receipt *Receipt) error {
	dir, err := s.IntakeDir(receipt.ClientID, receipt.IntakeID)
	if err != nil {
		return err
	}
	receiptPath := filepath.Join(dir, "receipt.json")
	raw, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(receiptPath, raw); err != nil {
		return err
	}

	entry := indexEntry{
		IntakeID:       receipt.IntakeID,
		ClientID:       receipt.ClientID,
		PresetID:       receipt.PresetID,
		Status:         receipt.Status,
		ReceivedAt:     receipt.ReceivedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Filename:       receipt.Filename,
		IdempotencyKey: receipt.IdempotencyKey,
		ReceiptPath:    receiptPath,
		RuleApplied:    ruleFromNotes(receipt.Notes),
		Notes:          capNotes(receipt.Notes, 10),
	}
	if receipt.Parse != nil {
		confidence := receipt.Parse.Confidence
		entry.Confidence = &confidence
	}

	lock := s.clientLock(receipt.ClientID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	ck := cacheKey(receipt.ClientID, receipt.IdempotencyKey)
	s.idempotency[ck] = receiptPath
	delete(s.inflight, ck)
	s.mu.Unlock()

	entries := s.loadIndex(receipt.ClientID)
	updated := false
	for i := range entries {
		if entries[i].IntakeID == receipt.IntakeID {
			entries[i] = entry
			updated = true
			break
		}
	}
	if !updated {
		entries = append(entries, entry)
	}
	return s.writeIndex(receipt.ClientID, entries)
}

func capNotes(notes []string, limit int) []string {
	if notes == nil {
		return []string{}
	}
	if len(notes) > limit {
		return notes[:limit]
	}
	return notes
}

func cacheKey(clientID, idempotencyKey string) string {
	return clientOrDefault(clientID) + "\x00" + idempotencyKey
}

func (s *Store) loadIndex(clientID string) []indexEntry {
	file, err := os.Open(s.indexPath(clientID))
	if err != nil {
		return nil
	}
	defer file.Close()

	var entries []indexEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry indexEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// writeFileAtomic stages the bytes in a sibling temp file and renames
// it into place, so readers never observe a partially written body.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".receipt-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func (s *Store) writeIndex(clientID string, entries []indexEntry) error {
	indexPath := s.indexPath(clientID)
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return err
	}
	tmpPath := indexPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	writer := bufio.NewWriter(file)
	for _, entry := range entries {
		raw, err := json.Marshal(entry)
		if err != nil {
			file.Close()
			os.Remove(tmpPath)
			return err
		}
		writer.Write(raw)
		writer.WriteByte('\n')
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, indexPath)
}

// LoadReceipt reads one receipt file; nil when missing or unreadable.
func (s *Store) LoadReceipt(clientID, intakeID string) *Receipt {
	raw, err := os.ReadFile(s.ReceiptPath(clientID, intakeID))
	if err != nil {
		return nil
	}
	var receipt Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil
	}
	return &receipt
}

// GetReceipt finds a receipt by intake id. With an empty client id, all
// client directories are scanned.
func (s *Store) GetReceipt(intakeID, clientID string) *Receipt {
	if clientID != "" {
		return s.LoadReceipt(clientID, intakeID)
	}
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if receipt := s.LoadReceipt(entry.Name(), intakeID); receipt != nil {
			return receipt
		}
	}
	return nil
}

func readReceiptFile(path string) *Receipt {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var receipt Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil
	}
	return &receipt
}

// ListDeliveries returns index entries newest first, optionally
// filtered by status or a free-text search over id, filename and
// idempotency key. An empty client id aggregates every client.
func (s *Store) ListDeliveries(clientID, statusFilter, search string, limit int) []DeliverySummary {
	if limit <= 0 {
		limit = 50
	}

	var entries []indexEntry
	if clientID != "" {
		entries = s.loadIndex(clientID)
	} else {
		dirs, err := os.ReadDir(s.outputDir)
		if err == nil {
			for _, dir := range dirs {
				if dir.IsDir() {
					entries = append(entries, s.loadIndex(dir.Name())...)
				}
			}
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ReceivedAt > entries[j].ReceivedAt })

	summaries := make([]DeliverySummary, 0, limit)
	for _, entry := range entries {
		if statusFilter != "" && entry.Status != statusFilter {
			continue
		}
		if search != "" && !entryMatches(entry, search) {
			continue
		}
		summaries = append(summaries, entry.summary())
		if len(summaries) >= limit {
			break
		}
	}
	return summaries
}

func entryMatches(entry indexEntry, search string) bool {
	term := strings.ToLower(search)
	for _, value := range []string{entry.IntakeID, entry.Filename, entry.IdempotencyKey} {
		if strings.Contains(strings.ToLower(value), term) {
			return true
		}
	}
	return false
}

func (entry indexEntry) summary() DeliverySummary {
	received, err := time.Parse("2006-01-02T15:04:05Z", entry.ReceivedAt)
	if err != nil {
		received = time.Now().UTC()
	}
	return DeliverySummary{
		IntakeID:    entry.IntakeID,
		ClientID:    entry.ClientID,
		PresetID:    entry.PresetID,
		Status:      entry.Status,
		Confidence:  entry.Confidence,
		ReceivedAt:  received,
		Filename:    entry.Filename,
		RuleApplied: entry.RuleApplied,
		Notes:       entry.Notes,
	}
}
