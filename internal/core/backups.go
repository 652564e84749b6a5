package core

import (
	"context"

	"gopkg.in/yaml.v3"

	"shieldcore/internal/blob"
	"shieldcore/pkg/domain"
)

// Backups lists the backups of the committed document, newest first.
func (s *Service) Backups(ctx context.Context) ([]blob.Object, error) {
	var out []blob.Object
	err := s.run(ctx, "list_backups", "", "", func(ctx context.Context) error {
		objs, err := s.backups.List(ctx)
		if err != nil {
			return domain.DataError(domain.CodePersistence, err, "list backups")
		}
		out = objs
		return nil
	})
	return out, err
}

// Backup decodes one backup of the committed document. An empty key selects
// the newest. Backups whose content no longer matches the recorded checksum
// are refused.
func (s *Service) Backup(ctx context.Context, key string) (domain.Document, error) {
	var doc domain.Document
	err := s.run(ctx, "read_backup", "", key, func(ctx context.Context) error {
		if s.backups == nil {
			return domain.DataError(domain.CodePersistence, blob.ErrNotFound, "backups are disabled")
		}
		var (
			data []byte
			err  error
		)
		if key == "" {
			_, data, err = s.backups.Latest(ctx)
		} else {
			data, err = s.backups.Read(ctx, key)
		}
		if err != nil {
			return domain.DataError(domain.CodePersistence, err, "read backup")
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return domain.DataError(domain.CodePersistence, err, "decode backup")
		}
		return nil
	})
	return doc, err
}
