package interview

// Role identifies the author of a [Message].
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one turn of the interview transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Config parameterises a new interview session.
type Config struct {
	Role             string `json:"role" yaml:"role"`
	ExperienceLevel  string `json:"experience_level" yaml:"experience_level"`
	Topic            string `json:"topic,omitempty" yaml:"topic"`
	InterviewType    string `json:"interview_type,omitempty" yaml:"interview_type"`
	InterviewerStyle string `json:"interviewer_style,omitempty" yaml:"interviewer_style"`
	Company          string `json:"company,omitempty" yaml:"company"`
	Language         string `json:"language,omitempty" yaml:"language"`
	EnableTimer      bool   `json:"enable_timer,omitempty" yaml:"enable_timer"`
	TimePerQuestion  int    `json:"time_per_question,omitempty" yaml:"time_per_question"`
	MaxQuestions     int    `json:"max_questions,omitempty" yaml:"max_questions"`
	ResumeContext    string `json:"resume_context,omitempty" yaml:"resume_context"`
	JobDescription   string `json:"job_description,omitempty" yaml:"job_description"`
	EnablePanel      bool   `json:"enable_panel,omitempty" yaml:"enable_panel"`
}

// Interview types accepted by the service.
const (
	TypeBehavioral   = "Behavioral"
	TypeTechnical    = "Technical"
	TypeSystemDesign = "System Design"
	TypeCaseStudy    = "Case Study"
	TypeMixed        = "Mixed"
)

// Interviewer styles accepted by the service.
const (
	StyleFriendly    = "Friendly"
	StyleChallenging = "Challenging"
	StyleTechnical   = "Technical"
)

// StartResult is the response to [Client.Start]. Message holds the
// interviewer's opening line when the service provides one.
type StartResult struct {
	SessionID string `json:"session_id"`
	// Message is optional; an empty value means no greeting is spoken.
	Message string `json:"message,omitempty"`
}

// Reply is the response to [Client.Chat].
type Reply struct {
	Message          string `json:"message"`
	IsInterviewEnded bool   `json:"is_interview_ended"`
}

// VoiceMetrics summarises the candidate's delivery.
type VoiceMetrics struct {
	WordsPerMinute  float64  `json:"words_per_minute"`
	FillerWordCount int      `json:"filler_word_count"`
	FillerWordsList []string `json:"filler_words_list"`
	TotalWords      int      `json:"total_words"`
	ConfidenceScore float64  `json:"confidence_score"`
	ClarityScore    float64  `json:"clarity_score"`
	PaceRating      string   `json:"pace_rating"`
	Feedback        []string `json:"feedback"`
}

// Feedback is the post-interview evaluation.
type Feedback struct {
	Score                float64           `json:"score"`
	Summary              string            `json:"summary"`
	Strengths            []string          `json:"strengths"`
	Improvements         []string          `json:"improvements"`
	CommunicationScore   float64           `json:"communication_score"`
	TechnicalScore       float64           `json:"technical_score"`
	ProblemSolvingScore  float64           `json:"problem_solving_score"`
	CultureFitScore      float64           `json:"culture_fit_score"`
	ImprovementTips      []string          `json:"improvement_tips"`
	RecommendedResources []string          `json:"recommended_resources,omitempty"`
	VoiceMetrics         *VoiceMetrics     `json:"voice_metrics,omitempty"`
	Transcript           []Message         `json:"transcript,omitempty"`
	AudioURLs            map[string]string `json:"audio_urls,omitempty"`
}
