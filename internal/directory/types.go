package directory

// TeamRef 服务上挂载的团队引用
type TeamRef struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// Team 目录中的团队
type Team struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
}

// Service 目录中的技术服务
type Service struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Summary     string    `json:"summary,omitempty"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status,omitempty"`
	Teams       []TeamRef `json:"teams,omitempty"`
}

// OwnerTeam 服务归属团队（第一个挂载团队），没有时返回 false
func (s Service) OwnerTeam() (TeamRef, bool) {
	if len(s.Teams) == 0 {
		return TeamRef{}, false
	}
	return s.Teams[0], true
}

// User 目录中的用户
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// ServicePatch 更新服务时可修改的字段，nil 表示不修改
type ServicePatch struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Teams       []TeamRef `json:"teams,omitempty"`
}
