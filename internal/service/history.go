package service

import (
	"context"
	"fmt"

	"handsign/internal/models"
)

type Lister interface {
	ListAll(ctx context.Context) ([]models.TranslationRecord, error)
}

// History reads every stored translation, newest first. There is no cache:
// each call goes to the repository.
type History struct {
	repo Lister
}

func NewHistory(repo Lister) *History {
	return &History{repo: repo}
}

func (h *History) ListAll(ctx context.Context) ([]models.TranslationRecord, error) {
	const op = "service.ListAll"

	rows, err := h.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rows, nil
}
