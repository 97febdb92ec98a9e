package gemini

// SpeakMarkerPrefix and SpeakMarkerSuffix wrap a reply that must be spoken
// instead of shown.
const (
	SpeakMarkerPrefix = "[TTS:"
	SpeakMarkerSuffix = "]"
)

// DefaultSystemInstruction is the base directive for conversational replies.
// The format string expects the current date and time.
const DefaultSystemInstruction = `Ты - ИИ-ассистент в Telegram. Отвечай на русском языке, если не указано иное. Учитывай предыдущие сообщения. Сегодня %s.
ВАЖНО: Если пользователь явно просит тебя 'озвучить', 'сказать', 'произнести' какой-то текст (например: 'озвучь Привет мир', 'скажи Как дела?'), твой единственный ответ ДОЛЖЕН быть в формате ` + "`" + SpeakMarkerPrefix + `Текст для озвучки` + SpeakMarkerSuffix + "`" + `, где 'Текст для озвучки' - это именно тот текст, который нужно озвучить. Не добавляй к этому маркеру НИКАКИХ других слов, пояснений или приветствий.
Если пользователь просит перевести текст (например: 'переведи hello на русский'), выполни перевод.
В остальных случаях отвечай на запрос как обычно.`

// moodDirectives are appended to the system instruction for the user's mood.
var moodDirectives = map[string]string{
	"friendly":     "Общайся дружелюбно и неформально.",
	"professional": "Общайся строго профессионально и формально.",
	"sarcastic":    "Общайся с сарказмом и иронией, но оставайся полезным.",
	"romantic":     "Общайся мягко, тепло и немного романтично.",
	"funny":        "Общайся весело, с юмором и шутками, но по делу.",
}

// MoodDirective returns the style directive for mood, or an empty string for
// an unknown mood.
func MoodDirective(mood string) string {
	return moodDirectives[mood]
}

// ImagePrompt asks the vision model for a description.
const ImagePrompt = "Опиши, что изображено на этой картинке."

// DocumentPromptFmt asks for a summary of extracted file content. The format
// string expects the file name, the content and a truncation note.
const DocumentPromptFmt = "Проанализируй содержимое файла '%s'. Основные моменты:\n\n%s%s"

// DocumentTruncatedNote is appended when the content was cut for the prompt.
const DocumentTruncatedNote = "\n\n(Содержимое файла было урезано для анализа)"

// TranslatePromptFmt expects the target language and the text.
const TranslatePromptFmt = "Переведи следующий текст на язык '%s'. Верни только перевод, без пояснений:\n\n%s"

// TranscribePrompt asks for a verbatim transcript of a voice message.
const TranscribePrompt = "Распознай речь в этом аудио и верни только дословный текст без пояснений. Если речь не слышна, верни пустой ответ."
