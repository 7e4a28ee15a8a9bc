package coloyalty

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	models "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

// Начальные данные реестра
type Seed struct {
	Users     []models.User
	Merchants []models.Merchant
	Products  []models.Product
}

type seedFile struct {
	Users     []seedUser     `yaml:"users"`
	Merchants []seedMerchant `yaml:"merchants"`
	Products  []seedProduct  `yaml:"products"`
}

type seedUser struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Email       string `yaml:"email"`
	Role        string `yaml:"role"`
	MerchantID  string `yaml:"merchantId"`
	Points      int64  `yaml:"points"`
	Exp         int64  `yaml:"exp"`
	Tier        string `yaml:"tier"`
	WalletVND   string `yaml:"walletVND"`
	Streak      int    `yaml:"streak"`
	LuckySpins  int    `yaml:"luckySpins"`
	Blacklisted bool   `yaml:"blacklisted"`
}

type seedMerchant struct {
	ID                  string `yaml:"id"`
	Name                string `yaml:"name"`
	Category            string `yaml:"category"`
	Tier                string `yaml:"tier"`
	PointRate           string `yaml:"pointRate"`
	Balance             string `yaml:"balance"`
	TotalPointsIssued   int64  `yaml:"totalPointsIssued"`
	TotalPointsRedeemed int64  `yaml:"totalPointsRedeemed"`
}

type seedProduct struct {
	ID            string `yaml:"id"`
	MerchantID    string `yaml:"merchantId"`
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	Price         string `yaml:"price"`
	PointPrice    int64  `yaml:"pointPrice"`
	Image         string `yaml:"image"`
	Category      string `yaml:"category"`
	Stock         int64  `yaml:"stock"`
	IsFlashSale   bool   `yaml:"isFlashSale"`
	FlashSaleEnds string `yaml:"flashSaleEnds"`
}

// Загрузка seed-файла; без пути используется встроенный набор
func LoadSeed(path string) (Seed, error) {
	if path == "" {
		return ParseSeed(defaultSeed)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, err
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (Seed, error) {
	file := &seedFile{}
	err := yaml.Unmarshal(data, file)
	if err != nil {
		return Seed{}, fmt.Errorf("seed: %w", err)
	}

	seed := Seed{
		Users:     make([]models.User, 0, len(file.Users)),
		Merchants: make([]models.Merchant, 0, len(file.Merchants)),
		Products:  make([]models.Product, 0, len(file.Products)),
	}
	for _, u := range file.Users {
		wallet, err := parseAmount(u.WalletVND)
		if err != nil {
			return Seed{}, fmt.Errorf("seed: user %s walletVND: %w", u.ID, err)
		}
		role := models.Role(u.Role)
		if role == "" {
			role = models.MEMBER
		}
		seed.Users = append(seed.Users, models.User{
			ID:          u.ID,
			Name:        u.Name,
			Email:       u.Email,
			Role:        role,
			MerchantID:  u.MerchantID,
			Points:      u.Points,
			Exp:         u.Exp,
			Tier:        models.MemberTier(u.Tier),
			WalletVND:   wallet,
			Streak:      u.Streak,
			LuckySpins:  u.LuckySpins,
			Blacklisted: u.Blacklisted,
		})
	}
	for _, m := range file.Merchants {
		balance, err := parseAmount(m.Balance)
		if err != nil {
			return Seed{}, fmt.Errorf("seed: merchant %s balance: %w", m.ID, err)
		}
		rate, err := parseAmount(m.PointRate)
		if err != nil {
			return Seed{}, fmt.Errorf("seed: merchant %s pointRate: %w", m.ID, err)
		}
		if rate.IsZero() {
			rate = models.DefaultPointRate
		}
		seed.Merchants = append(seed.Merchants, models.Merchant{
			ID:                  m.ID,
			Name:                m.Name,
			Category:            m.Category,
			Tier:                models.MerchantTier(m.Tier),
			PointRate:           rate,
			Balance:             balance,
			Reserve:             balance.Mul(models.ReserveRate),
			TotalPointsIssued:   m.TotalPointsIssued,
			TotalPointsRedeemed: m.TotalPointsRedeemed,
		})
	}
	for _, p := range file.Products {
		price, err := parseAmount(p.Price)
		if err != nil {
			return Seed{}, fmt.Errorf("seed: product %s price: %w", p.ID, err)
		}
		var ends time.Time
		if p.FlashSaleEnds != "" {
			ends, err = time.Parse(time.RFC3339, p.FlashSaleEnds)
			if err != nil {
				return Seed{}, fmt.Errorf("seed: product %s flashSaleEnds: %w", p.ID, err)
			}
		}
		seed.Products = append(seed.Products, models.Product{
			ID:            p.ID,
			MerchantID:    p.MerchantID,
			Name:          p.Name,
			Description:   p.Description,
			Price:         price,
			PointPrice:    p.PointPrice,
			Image:         p.Image,
			Category:      p.Category,
			Stock:         p.Stock,
			IsFlashSale:   p.IsFlashSale,
			FlashSaleEnds: ends,
		})
	}
	return seed, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
