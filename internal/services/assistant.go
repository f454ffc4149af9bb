package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gorm.io/gorm"

	"leitura_app_echo/internal/models"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// AssistantService answers reading recommendation questions with the Gemini
// API, grounded on the book catalog.
type AssistantService struct {
	db      *gorm.DB
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewAssistantService(db *gorm.DB) *AssistantService {
	url := os.Getenv("GEMINI_BASE_URL")
	if url == "" {
		url = defaultGeminiBaseURL
	}
	return &AssistantService{
		db:      db,
		baseURL: url,
		apiKey:  os.Getenv("GEMINI_API_KEY"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// AssistantReply is the structured recommendation sent back to the client.
// When the model answer cannot be parsed, Message carries the raw text and
// Recommendations is empty.
type AssistantReply struct {
	Message         string   `json:"message"`
	Recommendations []string `json:"recommendations"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		TopP            float64 `json:"topP"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Ask sends a user question to the model together with the catalog so the
// answer only ever recommends books the library actually has.
func (s *AssistantService) Ask(ctx context.Context, question string) (*AssistantReply, error) {
	catalog, err := s.catalogPrompt()
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`Você é um assistente de leitura. Recomende livros exclusivamente do catálogo abaixo.

Catálogo:
%s

Pergunta do usuário: %s

Responda em JSON com o formato {"message": "...", "recommendations": ["Título 1", "Título 2"]}. Os títulos devem ser exatamente como aparecem no catálogo.`, catalog, question)

	raw, err := s.generateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	reply := parseAssistantReply(raw)
	return reply, nil
}

func (s *AssistantService) catalogPrompt() (string, error) {
	var books []models.Book
	err := s.db.
		Where("image_url <> ''").
		Order("area asc, title asc").
		Find(&books).Error
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, b := range books {
		fmt.Fprintf(&sb, "- %q, %s (%s): %s\n", b.Title, b.Author, b.Area, b.About)
	}
	return sb.String(), nil
}

func (s *AssistantService) generateContent(ctx context.Context, prompt string) (string, error) {
	var payload geminiRequest
	payload.Contents = []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}
	payload.GenerationConfig.Temperature = 0.7
	payload.GenerationConfig.TopP = 0.8
	payload.GenerationConfig.MaxOutputTokens = 2048

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := s.baseURL + "/models/gemini-2.0-flash:generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-goog-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("gemini request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var decoded geminiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode gemini response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini response has no candidates")
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}

// parseAssistantReply extracts the JSON object the prompt asked for. Models
// sometimes wrap it in markdown fences or prose, so the outermost braces
// are located first. Unparseable answers degrade to a plain message.
func parseAssistantReply(raw string) *AssistantReply {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		var reply AssistantReply
		if err := json.Unmarshal([]byte(raw[start:end+1]), &reply); err == nil && reply.Message != "" {
			if reply.Recommendations == nil {
				reply.Recommendations = []string{}
			}
			return &reply
		}
	}
	return &AssistantReply{Message: strings.TrimSpace(raw), Recommendations: []string{}}
}
