package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"raider/chat"
	"raider/config"
	"raider/model"
	"raider/prompt"
	"raider/provider"
	"raider/storage"
)

const (
	Version = "v0.1.0"
	License = "Apache-2.0"
)

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	faintStyle     = lipgloss.NewStyle().Faint(true)
)

func main() {
	docPath := flag.String("doc", "", "text file to chat about (pages separated by form feeds)")
	providerID := flag.String("provider", "", "provider to use for this session")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("raider %s (%s)\n", Version, License)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	config.InitDebugLog(cfg.DataDir())

	store, err := storage.NewStore(cfg.DataDir())
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	registry := provider.NewRegistry(store)
	registry.Register(provider.NewOpenAIProvider(""))
	registry.Register(provider.NewAnthropicProvider(""))
	registry.Register(provider.NewDeepSeekProvider(""))
	registry.Register(provider.NewOllamaProvider(cfg.OllamaHost))
	if err := registry.Load(); err != nil {
		fmt.Printf("Failed to load provider settings: %v\n", err)
		os.Exit(1)
	}

	applyCredentials(registry, cfg)

	if *providerID != "" {
		if !registry.SetActive(*providerID) {
			fmt.Printf("Unknown provider: %s\n", *providerID)
			os.Exit(1)
		}
	} else if cfg.DefaultProvider != "" && registry.ActiveID() == provider.DefaultProviderID {
		registry.SetActive(cfg.DefaultProvider)
	}

	key, fullText, pages := loadDocument(*docPath)

	transport := newConsoleTransport()
	composer := prompt.NewComposer(prompt.Defaults())
	orch := chat.NewOrchestrator(registry, store, transport, composer, chat.Options{
		CheckpointCadence: cfg.CheckpointCadence,
		RequestTimeout:    time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	})

	fmt.Println(faintStyle.Render(fmt.Sprintf("raider %s — provider: %s — /help for commands", Version, registry.ActiveID())))
	runREPL(orch, registry, store, key, fullText, pages)
}

// applyCredentials copies stored API keys onto the adapters without
// writing them back to the database. Environment variables win over the
// credential file.
func applyCredentials(registry *provider.Registry, cfg *config.Config) {
	creds := config.NewCredentialStore(config.SecurityMethod(cfg.SecurityMethod), cfg.SSHKeyPath)
	if err := creds.Load(cfg.DataDir()); err != nil {
		fmt.Printf("Warning: could not load credentials: %v\n", err)
	}

	envKeys := map[string]string{
		"openai":    os.Getenv("OPENAI_API_KEY"),
		"anthropic": os.Getenv("ANTHROPIC_API_KEY"),
		"deepseek":  os.Getenv("DEEPSEEK_API_KEY"),
	}

	for _, summary := range registry.All() {
		apiKey := envKeys[summary.ID]
		if apiKey == "" {
			apiKey = creds.Get(summary.ID)
		}
		if apiKey == "" || summary.Settings.APIKey != "" {
			continue
		}
		key := apiKey
		registry.Get(summary.ID).ApplySettings(model.SettingsPatch{APIKey: &key})
	}
}

// loadDocument reads the document file when given, splitting pages on
// form feeds the way pdftotext emits them. Without a document the chat
// runs in plain Q&A mode under a synthetic key.
func loadDocument(path string) (model.DocumentKey, string, map[int]string) {
	if path == "" {
		return model.DocumentKey{Path: "(no document)", Name: "scratch"}, "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("Failed to read document: %v\n", err)
		os.Exit(1)
	}

	fullText := string(data)
	pages := make(map[int]string)
	for i, page := range strings.Split(fullText, "\f") {
		pages[i+1] = strings.TrimSpace(page)
	}

	key := model.DocumentKey{Path: path, Name: filepath.Base(path)}
	return key, fullText, pages
}

func runREPL(orch *chat.Orchestrator, registry *provider.Registry, store *storage.Store, key model.DocumentKey, fullText string, pages map[int]string) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	conversationID := ""

	for {
		fmt.Print(userStyle.Render("You: "))
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if handleCommand(line, registry, store, key, &conversationID) {
				return
			}
			continue
		}

		req := model.ChatRequest{
			ConversationID: conversationID,
			UserInput:      line,
			Document:       key,
			FullText:       fullText,
			PageText:       pages,
			TokenLength:    provider.EstimateTokens(fullText),
		}

		conv, err := orch.StartChatCompletion(context.Background(), req)
		if err != nil {
			fmt.Println(errorStyle.Render("Error: " + err.Error()))
			continue
		}
		conversationID = conv.ID

		fmt.Print(assistantStyle.Render("Assistant: "))
		<-orch.Wait(conv.ID)
		fmt.Println()
	}
}

// handleCommand runs a slash command; returns true to quit.
func handleCommand(line string, registry *provider.Registry, store *storage.Store, key model.DocumentKey, conversationID *string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/new":
		*conversationID = ""
		fmt.Println(faintStyle.Render("Started a new conversation."))

	case "/provider":
		if len(fields) < 2 {
			fmt.Println(faintStyle.Render("Active provider: " + registry.ActiveID()))
			break
		}
		if !registry.SetActive(fields[1]) {
			fmt.Println(errorStyle.Render("Unknown provider: " + fields[1]))
			break
		}
		fmt.Println(faintStyle.Render("Switched to " + fields[1]))

	case "/providers":
		for _, cfg := range registry.All() {
			marker := "  "
			if cfg.ID == registry.ActiveID() {
				marker = "* "
			}
			fmt.Printf("%s%s (%s)\n", marker, cfg.ID, cfg.DisplayName)
		}

	case "/model":
		if len(fields) < 2 {
			fmt.Println(faintStyle.Render("Usage: /model <model-id>"))
			break
		}
		modelID := fields[1]
		registry.UpdateSettings(registry.ActiveID(), model.SettingsPatch{SelectedModel: &modelID})
		fmt.Println(faintStyle.Render("Model set to " + modelID))

	case "/search":
		if len(fields) < 2 {
			fmt.Println(faintStyle.Render("Usage: /search <query>"))
			break
		}
		query := strings.TrimSpace(strings.TrimPrefix(line, "/search"))
		matches, err := store.SearchConversations(key, query)
		if err != nil {
			fmt.Println(errorStyle.Render("Search failed: " + err.Error()))
			break
		}
		for _, m := range matches {
			fmt.Printf("[%s #%d] %s: %s\n", m.ConversationID[:8], m.MessageIndex, m.Role, m.Preview)
		}
		if len(matches) == 0 {
			fmt.Println(faintStyle.Render("No matches."))
		}

	case "/help":
		fmt.Println(faintStyle.Render("/new /provider [id] /providers /model <id> /search <query> /quit"))

	default:
		fmt.Println(errorStyle.Render("Unknown command: " + fields[0]))
	}
	return false
}
