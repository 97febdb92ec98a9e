// Package config loads the bot configuration from a YAML file and BOT_*
// environment variables and validates it before any component starts.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/viper"
)

// Config is the root configuration object. It is built once at startup and
// passed by pointer to every component that needs it.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Weather   WeatherConfig   `mapstructure:"weather"`
	Translate TranslateConfig `mapstructure:"translate"`
	TTS       TTSConfig       `mapstructure:"tts"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Documents DocumentsConfig `mapstructure:"documents"`
	Moods     MoodsConfig     `mapstructure:"moods"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig controls the slog handler.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds the SQLite location and history retention.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
	// HistoryTurns is the number of stored turns (user and model messages
	// counted individually) kept per user.
	HistoryTurns int `mapstructure:"history_turns" validate:"gte=2,lte=1000"`
}

// TelegramConfig holds transport settings.
type TelegramConfig struct {
	Token            string        `mapstructure:"token"              validate:"required"`
	AdminUserIDs     []int64       `mapstructure:"admin_user_ids"`
	AllowedUserIDs   []int64       `mapstructure:"allowed_user_ids"`
	MarkupDialect    string        `mapstructure:"markup_dialect"     validate:"oneof=markdownv2 html"`
	MaxMessageLength int           `mapstructure:"max_message_length" validate:"gte=100,lte=4096"`
	SegmentDelay     time.Duration `mapstructure:"segment_delay"      validate:"gte=0,lte=10s"`
	TempDir          string        `mapstructure:"temp_dir"`
	TempMaxAge       time.Duration `mapstructure:"temp_max_age"       validate:"gte=1m"`

	// BotInfo is filled at runtime from getMe.
	BotInfo *models.User `mapstructure:"-"`
}

// GeminiConfig configures the language-model client.
type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key"             validate:"required"`
	ModelName         string        `mapstructure:"model_name"          validate:"required"`
	VisionModelName   string        `mapstructure:"vision_model_name"`
	Temperature       float32       `mapstructure:"temperature"         validate:"gte=0,lte=2"`
	MaxRetries        int           `mapstructure:"max_retries"         validate:"gte=0,lte=10"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"gte=0,lte=60"`
	Timeout           time.Duration `mapstructure:"timeout"             validate:"gte=1s"`
	SystemInstruction string        `mapstructure:"system_instruction"`
}

// WeatherConfig configures the OpenWeatherMap client.
type WeatherConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"     validate:"required,url"`
	DefaultCity string        `mapstructure:"default_city" validate:"required"`
	Timeout     time.Duration `mapstructure:"timeout"      validate:"gte=1s"`
}

// TranslateConfig configures the primary HTTP translator.
type TranslateConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout"  validate:"gte=1s"`
}

// TTSConfig configures speech synthesis.
type TTSConfig struct {
	BaseURL   string        `mapstructure:"base_url"   validate:"required,url"`
	Language  string        `mapstructure:"language"   validate:"required"`
	ChunkSize int           `mapstructure:"chunk_size" validate:"gte=20,lte=200"`
	Timeout   time.Duration `mapstructure:"timeout"    validate:"gte=1s"`
}

// OCRConfig configures the tesseract invocation.
type OCRConfig struct {
	Binary    string        `mapstructure:"binary"    validate:"required"`
	Languages string        `mapstructure:"languages" validate:"required"`
	PSM       int           `mapstructure:"psm"       validate:"gte=0,lte=13"`
	Timeout   time.Duration `mapstructure:"timeout"   validate:"gte=1s"`
}

// DocumentsConfig bounds document processing.
type DocumentsConfig struct {
	MaxFileSize             int64 `mapstructure:"max_file_size"              validate:"gt=0"`
	MaxContentLength        int   `mapstructure:"max_content_length"         validate:"gt=0"`
	MaxHistoryContentLength int   `mapstructure:"max_history_content_length" validate:"gt=0"`
}

// MoodsConfig lists the conversational styles users may pick.
type MoodsConfig struct {
	Default string   `mapstructure:"default" validate:"required"`
	Allowed []string `mapstructure:"allowed" validate:"min=1,dive,required"`
}

// TaskConfig defines the configuration for a single scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// MessagesConfig holds every fixed user-visible text.
type MessagesConfig struct {
	Help               string `mapstructure:"help"`
	AdminHelp          string `mapstructure:"admin_help"`
	Restarting         string `mapstructure:"restarting"`
	AccessDenied       string `mapstructure:"access_denied"`
	Apology            string `mapstructure:"apology"`
	DeliveryFailed     string `mapstructure:"delivery_failed"`
	EmptySpeech        string `mapstructure:"empty_speech"`
	SpeechFailed       string `mapstructure:"speech_failed"`
	WeatherLookupFmt   string `mapstructure:"weather_lookup_fmt"`
	VoiceProcessing    string `mapstructure:"voice_processing"`
	VoiceRecognizing   string `mapstructure:"voice_recognizing"`
	VoiceRecognizedFmt string `mapstructure:"voice_recognized_fmt"`
	VoiceNotRecognized string `mapstructure:"voice_not_recognized"`
	VoiceDownloadError string `mapstructure:"voice_download_error"`
	PhotoProcessing    string `mapstructure:"photo_processing"`
	PhotoDownloadError string `mapstructure:"photo_download_error"`
	PhotoNoDescription string `mapstructure:"photo_no_description"`
	FileProcessingFmt  string `mapstructure:"file_processing_fmt"`
	FileDownloadErrFmt string `mapstructure:"file_download_error_fmt"`
	FileNoAnalysis     string `mapstructure:"file_no_analysis"`
	MoodPromptFmt      string `mapstructure:"mood_prompt_fmt"`
	MoodChangedFmt     string `mapstructure:"mood_changed_fmt"`
	MoodUnknown        string `mapstructure:"mood_unknown"`
	SpeakStateFmt      string `mapstructure:"speak_state_fmt"`
	SpeakOn            string `mapstructure:"speak_on"`
	SpeakOff           string `mapstructure:"speak_off"`
	TranslateUsage     string `mapstructure:"translate_usage"`
	TranslateFailed    string `mapstructure:"translate_failed"`
	TranslateUnknown   string `mapstructure:"translate_unknown_fmt"`
	NoIdentity         string `mapstructure:"no_identity"`
}

// defaults mirrors the documented configuration keys. Every key that may be
// overridden from the environment must be present here so viper can bind it.
var defaults = map[string]any{
	"logger.level": "info",
	"logger.json":  false,

	"database.path":          "./storage.db",
	"database.history_turns": 40,

	"telegram.token":              "",
	"telegram.admin_user_ids":     []int64{},
	"telegram.allowed_user_ids":   []int64{},
	"telegram.markup_dialect":     "html",
	"telegram.max_message_length": 4000,
	"telegram.segment_delay":      500 * time.Millisecond,
	"telegram.temp_dir":           "",
	"telegram.temp_max_age":       time.Hour,

	"gemini.api_key":             "",
	"gemini.model_name":          "gemini-2.0-flash",
	"gemini.vision_model_name":   "",
	"gemini.temperature":         0.7,
	"gemini.max_retries":         2,
	"gemini.retry_delay_seconds": 2,
	"gemini.timeout":             2 * time.Minute,
	"gemini.system_instruction":  "",

	"weather.api_key":      "",
	"weather.base_url":     "https://api.openweathermap.org/data/2.5/weather",
	"weather.default_city": "Москва",
	"weather.timeout":      15 * time.Second,

	"translate.base_url": "https://translate.googleapis.com/translate_a/single",
	"translate.timeout":  15 * time.Second,

	"tts.base_url":   "https://translate.google.com/translate_tts",
	"tts.language":   "ru",
	"tts.chunk_size": 200,
	"tts.timeout":    30 * time.Second,

	"ocr.binary":    "tesseract",
	"ocr.languages": "rus+eng",
	"ocr.psm":       6,
	"ocr.timeout":   60 * time.Second,

	"documents.max_file_size":              int64(50 * 1024 * 1024),
	"documents.max_content_length":         30000,
	"documents.max_history_content_length": 15000,

	"moods.default": "friendly",
	"moods.allowed": []string{"friendly", "professional", "sarcastic", "romantic", "funny"},

	"scheduler.tasks.sql_maintenance.enabled":  true,
	"scheduler.tasks.sql_maintenance.schedule": "0 0 4 * * *",
	"scheduler.tasks.temp_cleanup.enabled":     true,
	"scheduler.tasks.temp_cleanup.schedule":    "0 */30 * * * *",

	"messages.help": "Я многофункциональный AI-бот. Вот что я умею:\n\n" +
		"Общение: просто напиши мне, и я отвечу с помощью Google Gemini. Можешь спросить погоду, написав 'погода <город>'.\n" +
		"Погода: /weather <город>.\n" +
		"Голосовые сообщения: отправь мне голосовое, я его распознаю и отвечу.\n" +
		"Анализ изображений: отправь картинку, я опишу её (текст с картинки не выводится).\n" +
		"Обработка файлов: отправь .txt, .pdf, .csv, .xlsx или .docx, и я проанализирую содержимое.\n" +
		"Стиль общения: /mood - выбери мой стиль.\n" +
		"Перевод: /translate <язык> <текст>.\n" +
		"Озвучка: /toggle_speak - вкл/выкл автоматическую озвучку моих ответов.\n\n" +
		"Настройки хранятся для каждого пользователя.",
	"messages.admin_help":              "\n\nАдмин-команды:\n/admin /status /restart",
	"messages.restarting":              "⚠️ Перезапускаю бота. Он вернётся через несколько секунд.",
	"messages.access_denied":           "⛔ Доступ запрещён.",
	"messages.apology":                 "Извините, не могу сейчас ответить. Попробуйте позже.",
	"messages.delivery_failed":         "Произошла ошибка при отправке ответа.",
	"messages.empty_speech":            "Не могу озвучить пустой текст.",
	"messages.speech_failed":           "Не удалось сгенерировать аудиоответ.",
	"messages.weather_lookup_fmt":      "Узнаю погоду для '%s'...",
	"messages.voice_processing":        "Обрабатываю голосовое сообщение...",
	"messages.voice_recognizing":       "Распознаю речь...",
	"messages.voice_recognized_fmt":    "Распознанный текст: \"%s\"\n\nГенерирую ответ...",
	"messages.voice_not_recognized":    "Не удалось распознать речь в вашем сообщении.",
	"messages.voice_download_error":    "Ошибка при скачивании голосового сообщения.",
	"messages.photo_processing":        "Анализирую изображение...",
	"messages.photo_download_error":    "Ошибка при скачивании изображения.",
	"messages.photo_no_description":    "Не удалось получить описание изображения.",
	"messages.file_processing_fmt":     "Получил файл '%s'. Обрабатываю...",
	"messages.file_download_error_fmt": "Ошибка при скачивании файла '%s'.",
	"messages.file_no_analysis":        "Не удалось получить анализ содержимого от AI.",
	"messages.mood_prompt_fmt":         "Выбери мой стиль общения. Текущий: %s",
	"messages.mood_changed_fmt":        "✅ Стиль общения изменен на: %s",
	"messages.mood_unknown":            "Неизвестный стиль общения.",
	"messages.speak_state_fmt":         "🔊 Озвучка моих ответов теперь %s.",
	"messages.speak_on":                "ВКЛЮЧЕНА",
	"messages.speak_off":               "ВЫКЛЮЧЕНА",
	"messages.translate_usage":         "Использование: /translate <язык> <текст>",
	"messages.translate_failed":        "Извините, не удалось получить перевод.",
	"messages.translate_unknown_fmt":   "Язык '%s' не поддерживается.",
	"messages.no_identity":             "Ошибка: не удалось определить пользователя.",
}

// LoadConfig reads configuration from the YAML file at path (which may be
// absent), overlays BOT_* environment variables and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !slices.Contains(c.Moods.Allowed, c.Moods.Default) {
		return fmt.Errorf("invalid configuration: default mood %q is not in the allowed list", c.Moods.Default)
	}
	return nil
}

// IsAdmin reports whether userID is one of the configured administrators.
func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.Telegram.AdminUserIDs, userID)
}

// IsAllowed applies the allow-list: an empty list admits everyone,
// administrators are always admitted.
func (c *Config) IsAllowed(userID int64) bool {
	if len(c.Telegram.AllowedUserIDs) == 0 || c.IsAdmin(userID) {
		return true
	}
	return slices.Contains(c.Telegram.AllowedUserIDs, userID)
}

// IsMoodAllowed reports whether mood is a selectable style.
func (c *Config) IsMoodAllowed(mood string) bool {
	return slices.Contains(c.Moods.Allowed, mood)
}
