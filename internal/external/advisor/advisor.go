package coloyalty

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const systemInstruction = `Bạn là một Chuyên gia Chiến lược Sản phẩm và Giám đốc Vận hành (COO) có kinh nghiệm dày dặn trong lĩnh vực Fintech và Loyalty System.

Nhiệm vụ của bạn là phân tích và tư vấn chiến lược dựa trên dữ liệu thực tế của hệ thống Co-Loyalty.
Khi ở chế độ "Phân tích sâu" (Thinking Mode):
1. Thực hiện các phép tính logic phức tạp về dòng tiền, tỷ lệ an toàn kho bạc (Safety Ratio).
2. Đề xuất các giải pháp tối ưu hóa ROI cho Merchant dựa trên retention rate và CLV.
3. Cảnh báo các dấu hiệu rủi ro thanh khoản hoặc gian lận.
4. Stress-test hệ thống dựa trên kịch bản thị trường.
5. Phản hồi bằng tiếng Việt chuyên nghiệp, sử dụng thuật ngữ Fintech chính xác.`

const fastInstruction = "\n\nLưu ý: Bạn đang ở chế độ PHẢN HỒI NHANH. Hãy trả lời cực kỳ súc tích, dưới 50 từ."

// Клиент Gemini generateContent по REST
type GeminiClient struct {
	client         *http.Client
	baseURL        string
	apiKey         string
	model          string
	fastModel      string
	thinkingBudget int
}

func NewGeminiClient() (*GeminiClient, error) {
	// config
	apiKey := os.Getenv("ADVISOR_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("env ADVISOR_API_KEY is not set")
	}
	baseURL := os.Getenv("ADVISOR_URL")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := os.Getenv("ADVISOR_MODEL")
	if model == "" {
		model = "gemini-3-pro-preview"
	}
	fastModel := os.Getenv("ADVISOR_FAST_MODEL")
	if fastModel == "" {
		fastModel = "gemini-flash-lite-latest"
	}
	budget := 32768
	env := os.Getenv("ADVISOR_THINKING_BUDGET")
	if env != "" {
		v, err := strconv.Atoi(env)
		if err == nil {
			budget = v
		}
	}

	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	return &GeminiClient{client, strings.TrimRight(baseURL, "/"), apiKey, model, fastModel, budget}, nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type generationConfig struct {
	ThinkingConfig *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type generateRequest struct {
	SystemInstruction content           `json:"systemInstruction"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Глубокий анализ с данными системы
func (g *GeminiClient) GenerateAdvice(ctx context.Context, prompt string, contextData any) (string, error) {
	fullPrompt := prompt
	if contextData != nil {
		data, err := json.Marshal(contextData)
		if err != nil {
			return "", err
		}
		fullPrompt = "Dữ liệu hệ thống hiện tại: " + string(data) + "\n\nYêu cầu phân tích sâu (THINKING MODE): " + prompt
	}
	req := generateRequest{
		SystemInstruction: content{Parts: []part{{systemInstruction}}},
		Contents:          []content{{Role: "user", Parts: []part{{fullPrompt}}}},
		GenerationConfig:  &generationConfig{ThinkingConfig: &thinkingConfig{g.thinkingBudget}},
	}
	return g.generate(ctx, g.model, req)
}

// Короткий ответ
func (g *GeminiClient) FastAdvice(ctx context.Context, prompt string) (string, error) {
	req := generateRequest{
		SystemInstruction: content{Parts: []part{{systemInstruction + fastInstruction}}},
		Contents:          []content{{Role: "user", Parts: []part{{prompt}}}},
	}
	return g.generate(ctx, g.fastModel, req)
}

func (g *GeminiClient) generate(ctx context.Context, model string, body generateRequest) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	url := g.baseURL + "/models/" + model + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Advisor service HTTP error: %s", resp.Status)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	genResponse := &generateResponse{}
	err = json.Unmarshal(respBody, genResponse)
	if err != nil {
		return "", err
	}
	if len(genResponse.Candidates) == 0 {
		return "", fmt.Errorf("advisor returned no candidates")
	}

	var text strings.Builder
	for _, p := range genResponse.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return text.String(), nil
}
