package services

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/doublec/ranchportal/internal/models"
)

//go:embed seed/documents.yaml
var defaultDocumentsYAML []byte

type documentSeed struct {
	Code     string `yaml:"code"`
	Name     string `yaml:"name"`
	Version  int    `yaml:"version"`
	Required *bool  `yaml:"required"`
	Content  string `yaml:"content"`
}

type documentSeedFile struct {
	Documents []documentSeed `yaml:"documents"`
}

// SeedResult reports what a load did per document code.
type SeedResult struct {
	Code    string
	Created bool
}

// SeedDefaultDocuments creates the waiver and lesson agreement when no
// version of their code exists yet.
func (s *Service) SeedDefaultDocuments(ctx context.Context) ([]SeedResult, error) {
	return s.loadDocuments(ctx, defaultDocumentsYAML)
}

// LoadDocumentsFile is SeedDefaultDocuments for a YAML file of the same shape.
func (s *Service) LoadDocumentsFile(ctx context.Context, path string) ([]SeedResult, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read documents file: %w", err)
	}
	return s.loadDocuments(ctx, buf)
}

func (s *Service) loadDocuments(ctx context.Context, buf []byte) ([]SeedResult, error) {
	var f documentSeedFile
	if err := yaml.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("parse documents: %w", err)
	}
	if len(f.Documents) == 0 {
		return nil, errors.New("no documents defined")
	}
	var out []SeedResult
	for _, d := range f.Documents {
		created, err := s.getOrCreateDocument(ctx, d)
		if err != nil {
			return out, fmt.Errorf("document %s: %w", d.Code, err)
		}
		out = append(out, SeedResult{Code: d.Code, Created: created})
		if created {
			s.logger.Info("document created", "code", d.Code)
		} else {
			s.logger.Warn("document already exists", "code", d.Code)
		}
	}
	return out, nil
}

// getOrCreateDocument matches on code alone; any existing version wins.
func (s *Service) getOrCreateDocument(ctx context.Context, d documentSeed) (bool, error) {
	in := DocumentInput{Code: d.Code, Name: d.Name, Content: strings.TrimSpace(d.Content), IsRequired: true}
	if d.Required != nil {
		in.IsRequired = *d.Required
	}
	if err := in.validate(); err != nil {
		return false, err
	}
	version := d.Version
	if version <= 0 {
		version = 1
	}
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Document{}).Where("code = ?", in.Code).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		doc := models.Document{
			Code:       in.Code,
			Version:    version,
			Name:       in.Name,
			Content:    in.Content,
			IsActive:   true,
			IsRequired: true,
		}
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}
		if !in.IsRequired {
			if err := tx.Model(&doc).Update("is_required", false).Error; err != nil {
				return err
			}
		}
		created = true
		return LogTx(tx, ActionDocumentPublished, nil, nil, map[string]any{
			"document_id": doc.ID.String(),
			"code":        doc.Code,
			"version":     doc.Version,
			"source":      "load-documents",
		})
	})
	return created, err
}
