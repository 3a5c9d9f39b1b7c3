package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateElectionRequest struct {
	Title        string   `json:"title,omitempty"`
	VotingStart  string   `json:"voting_start"`
	VotingEnd    string   `json:"voting_end"`
	CandidateIDs []string `json:"candidate_ids"`
}

type ElectionResponse struct {
	ElectionID      string   `json:"election_id"`
	AuthorityID     string   `json:"authority_id"`
	Title           string   `json:"title,omitempty"`
	VotingStart     string   `json:"voting_start"`
	VotingEnd       string   `json:"voting_end"`
	CandidateIDs    []string `json:"candidate_ids"`
	Paused          bool     `json:"paused"`
	ResultsRevealed bool     `json:"results_revealed"`
	TotalVotes      int      `json:"total_votes"`
	Phase           string   `json:"phase,omitempty"`
}

type ElectionListResponse struct {
	Items []ElectionResponse `json:"items"`
}

type RegisterParticipantRequest struct {
	VoterID string `json:"voter_id"`
}

type CastVoteRequest struct {
	Commitment string `json:"commitment"`
}

type CastVoteResponse struct {
	ElectionID string `json:"election_id"`
	VoterID    string `json:"voter_id"`
	Commitment string `json:"commitment"`
	CastAt     string `json:"cast_at"`
}

type VerifyVoteResponse struct {
	ElectionID string `json:"election_id"`
	VoterID    string `json:"voter_id"`
	Matches    bool   `json:"matches"`
}

type RevealResultsRequest struct {
	VoterIDs         []string `json:"voter_ids"`
	CandidateChoices []string `json:"candidate_choices"`
}

type ResultsResponse struct {
	ElectionID   string   `json:"election_id"`
	CandidateIDs []string `json:"candidate_ids"`
	Counts       []int    `json:"counts"`
}

type StatsResponse struct {
	ElectionID      string `json:"election_id"`
	RegisteredCount int    `json:"registered_count"`
	TotalVotes      int    `json:"total_votes"`
	VotingStart     string `json:"voting_start"`
	VotingEnd       string `json:"voting_end"`
	Paused          bool   `json:"paused"`
	ResultsRevealed bool   `json:"results_revealed"`
	Phase           string `json:"phase"`
}
