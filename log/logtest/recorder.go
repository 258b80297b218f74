/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-resourcekit/log"
)

// RecordedEntry is a single logged entry.
type RecordedEntry struct {
	Level  log.Level
	Time   time.Time
	Text   string
	Fields []log.Field
}

// FindField returns the field with the given key.
// Fields bound with FieldLogger.With are searched too.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			return &re.Fields[i], true
		}
	}
	return nil, false
}

// StringField returns the value of the string field with the given key.
func (re *RecordedEntry) StringField(key string) (string, bool) {
	field, ok := re.FindField(key)
	if !ok || field.Type != logf.FieldTypeBytesToString {
		return "", false
	}
	return string(field.Bytes), true
}

type entryStore struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic
func (s *entryStore) WriteEntry(e logf.Entry) {
	fields := make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields))
	fields = append(fields, e.Fields...)
	fields = append(fields, e.DerivedFields...)
	entry := RecordedEntry{Level: levelFromLogf(e.Level), Time: e.Time, Text: e.Text, Fields: fields}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
}

func (s *entryStore) filter(fn func(entry *RecordedEntry) bool) []RecordedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []RecordedEntry
	for i := range s.entries {
		if fn(&s.entries[i]) {
			res = append(res, s.entries[i])
		}
	}
	return res
}

// Recorder is a log.FieldLogger which keeps every entry (debug level included) for later inspection.
// Loggers derived with With and WithLevel share the records with the parent.
type Recorder struct {
	*log.LogfAdapter
	store *entryStore
}

// NewRecorder creates a new Recorder.
func NewRecorder() *Recorder {
	store := &entryStore{}
	return &Recorder{&log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, store)}, store}
}

// With returns a derived Recorder with the given additional fields.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{r.LogfAdapter.With(fs...).(*log.LogfAdapter), r.store}
}

// WithLevel returns a derived Recorder which drops entries below the given level.
func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), r.store}
}

// Entries returns all recorded entries in the order they were logged.
func (r *Recorder) Entries() []RecordedEntry {
	return r.store.filter(func(*RecordedEntry) bool { return true })
}

// FindEntry returns the first entry with the given message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	entries := r.FindEntries(msg)
	if len(entries) == 0 {
		return RecordedEntry{}, false
	}
	return entries[0], true
}

// FindEntries returns all entries with the given message.
func (r *Recorder) FindEntries(msg string) []RecordedEntry {
	return r.store.filter(func(entry *RecordedEntry) bool { return entry.Text == msg })
}

// EntriesAtLevel returns all entries of the given level.
func (r *Recorder) EntriesAtLevel(level log.Level) []RecordedEntry {
	return r.store.filter(func(entry *RecordedEntry) bool { return entry.Level == level })
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.store.mu.Lock()
	r.store.entries = nil
	r.store.mu.Unlock()
}

func levelFromLogf(level logf.Level) log.Level {
	switch level {
	case logf.LevelError:
		return log.LevelError
	case logf.LevelWarn:
		return log.LevelWarn
	case logf.LevelDebug:
		return log.LevelDebug
	default:
		return log.LevelInfo
	}
}
