package store

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/listenupapp/listenup-reader/internal/domain"
	"github.com/listenupapp/listenup-reader/internal/errors"
)

// SettingsKey is the single well-known key holding the serialized settings record.
const SettingsKey = "app_settings"

// SaveSettings serializes the whole record under SettingsKey, replacing any prior value.
func (s *Store) SaveSettings(ctx context.Context, settings *domain.Settings) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return errors.Persistence("encode settings").WithCause(err)
	}

	if err := s.setRaw([]byte(SettingsKey), data); err != nil {
		if s.logger != nil {
			s.logger.Error("Failed to save settings", "error", err)
		}
		return errors.Persistence("write settings").WithCause(err)
	}
	return nil
}

// LoadSettings reads the record. A missing key yields defaults. A present blob is decoded
// onto a freshly defaulted record so fields added since it was written are back-filled.
// Read or parse failures are returned, never replaced with defaults.
func (s *Store) LoadSettings(ctx context.Context) (*domain.Settings, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}

	data, found, err := s.getRaw([]byte(SettingsKey))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("Failed to read settings", "error", err)
		}
		return nil, errors.Persistence("read settings").WithCause(err)
	}
	if !found {
		return domain.NewSettings(), nil
	}

	settings := domain.NewSettings()
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(settings); err != nil {
		if s.logger != nil {
			s.logger.Error("Stored settings are corrupt", "error", err, "bytes", len(data))
		}
		return nil, errors.Persistence("decode settings").WithCause(err)
	}
	return settings, nil
}

// ResetSettings deletes the stored record; the next load returns defaults.
func (s *Store) ResetSettings(ctx context.Context) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	if err := s.delete([]byte(SettingsKey)); err != nil {
		return errors.Persistence("reset settings").WithCause(err)
	}
	return nil
}

// RawSettings returns the stored bytes as-is, or nil if nothing was ever saved.
func (s *Store) RawSettings(ctx context.Context) ([]byte, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	data, _, err := s.getRaw([]byte(SettingsKey))
	if err != nil {
		return nil, errors.Persistence("read settings").WithCause(err)
	}
	return data, nil
}
