package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/p2p-market-backend/internal/models"
	"github.com/ignatzorin/p2p-market-backend/internal/pkg/apperror"
	"github.com/ignatzorin/p2p-market-backend/internal/repository"
	"github.com/ignatzorin/p2p-market-backend/internal/validation"
)

// ProductRepository описывает взаимодействие сервиса с хранилищем товаров.
type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListActive(ctx context.Context, limit, offset int) ([]models.Product, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, limit, offset int) ([]models.Product, error)
	Update(ctx context.Context, product *models.Product) error
}

// ProductService содержит бизнес-логику карточек товаров.
type ProductService struct {
	repo ProductRepository
}

// NewProductService создаёт новый сервис товаров.
func NewProductService(repo ProductRepository) *ProductService {
	return &ProductService{repo: repo}
}

// CreateProductInput описывает входные данные.
type CreateProductInput struct {
	SellerID    uuid.UUID
	Title       string
	Description *string
	Price       float64
	Stock       int
}

// CreateProduct создаёт карточку товара.
func (s *ProductService) CreateProduct(ctx context.Context, in CreateProductInput) (*models.Product, error) {
	if err := validateProductFields(in.Title, in.Description, in.Price, in.Stock); err != nil {
		return nil, err
	}

	product := &models.Product{
		SellerID:    in.SellerID,
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		IsActive:    true,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("product service: create: %w", err)
	}

	return product, nil
}

// GetProduct возвращает карточку товара.
func (s *ProductService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, apperror.ErrProductNotFound
		}
		return nil, fmt.Errorf("product service: get: %w", err)
	}

	return product, nil
}

// ListProducts возвращает витрину активных товаров.
func (s *ProductService) ListProducts(ctx context.Context, limit, offset int) ([]models.Product, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	products, err := s.repo.ListActive(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("product service: list: %w", err)
	}

	return products, nil
}

// ListSellerProducts возвращает товары продавца.
func (s *ProductService) ListSellerProducts(ctx context.Context, sellerID uuid.UUID, limit, offset int) ([]models.Product, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	products, err := s.repo.ListBySeller(ctx, sellerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("product service: list by seller: %w", err)
	}

	return products, nil
}

// UpdateProductInput описывает входные данные для обновления.
type UpdateProductInput struct {
	ProductID   uuid.UUID
	SellerID    uuid.UUID
	Title       string
	Description *string
	Price       float64
	Stock       int
	IsActive    bool
}

// UpdateProduct обновляет карточку. Редактировать товар может только владелец.
func (s *ProductService) UpdateProduct(ctx context.Context, in UpdateProductInput) (*models.Product, error) {
	product, err := s.repo.GetByID(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, apperror.ErrProductNotFound
		}
		return nil, fmt.Errorf("product service: get: %w", err)
	}

	if product.SellerID != in.SellerID {
		return nil, apperror.ErrForbidden
	}

	if err := validateProductFields(in.Title, in.Description, in.Price, in.Stock); err != nil {
		return nil, err
	}

	product.Title = in.Title
	product.Description = in.Description
	product.Price = in.Price
	product.Stock = in.Stock
	product.IsActive = in.IsActive

	if err := s.repo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("product service: update: %w", err)
	}

	return product, nil
}

// validateProductFields проверяет поля карточки товара.
func validateProductFields(title string, description *string, price float64, stock int) error {
	if err := validation.ValidateNonEmpty("название товара", title); err != nil {
		return apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateLength("название товара", title, 0, validation.MaxTitleLength); err != nil {
		return apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if description != nil {
		if err := validation.ValidateLength("описание", *description, 0, validation.MaxDescriptionLength); err != nil {
			return apperror.New(apperror.ErrCodeValidation, err.Error())
		}
	}
	if err := validation.ValidateAmount(price); err != nil {
		return apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if stock < 0 {
		return apperror.New(apperror.ErrCodeValidation, "остаток не может быть отрицательным")
	}
	return nil
}
