package oracle

// AssistantPrompt is the system prompt for free-form questions.
const AssistantPrompt = "You are an AI assistant that answers questions clearly and concisely. " +
	"When task context is provided, use it to ground your answer."

// TaskExtractionPrompt asks for a JSON array of tasks found in an email body.
const TaskExtractionPrompt = "You are a helpful assistant that extracts TODO tasks from an email. " +
	"For each task, return an object with keys: 'title' (string), 'due_date' (ISO 8601 date or null). " +
	`Return a JSON array of those objects only; e.g. [{"title":"Buy milk","due_date":"2025-05-01"}]. ` +
	"If no tasks are present, return an empty array [] exactly."

// MeetingExtractionPrompt asks for a JSON object describing a meeting found
// in an email body. An empty object means no meeting was detected.
const MeetingExtractionPrompt = "You are a highly skilled AI assistant, expert in identifying and extracting " +
	"meeting information from email text. Extract the date, time, and meeting link (if any) from the provided " +
	"email content. If a meeting is found, return a JSON object with the keys: 'date' (YYYY-MM-DD), " +
	"'time' (HH:MM in 24-hour format), 'link' (URL), and 'description' (short summary of meeting context). " +
	"If no meeting is found, return an empty JSON object {} exactly. " +
	"Focus on emails that contain a Google Meet or Zoom link. Ensure your output is a valid JSON object."
