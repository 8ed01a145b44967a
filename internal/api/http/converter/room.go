package converter

import (
	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/internal/service"
)

type CreateRoomResponse struct {
	Success   bool     `json:"success"`
	RoomID    string   `json:"roomId"`
	Message   string   `json:"message"`
	UserCount int      `json:"userCount"`
	AllUsers  []string `json:"allUsers"`
}

type JoinRoomResponse struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message"`
	ExistingUsers []string `json:"existingUsers"`
	UserCount     int      `json:"userCount"`
	AllUsers      []string `json:"allUsers"`
}

type LeaveRoomResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	UserCount int    `json:"userCount"`
}

type RoomInfoResponse struct {
	Success     bool     `json:"success"`
	HasPassword bool     `json:"hasPassword"`
	UserCount   int      `json:"userCount"`
	Users       []string `json:"users"`
}

type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func RoomCreatedToApi(r *domain.Room) *CreateRoomResponse {
	return &CreateRoomResponse{
		Success:   true,
		RoomID:    r.ID,
		Message:   "room created",
		UserCount: r.MemberCount(),
		AllUsers:  r.MemberList(),
	}
}

func RoomJoinedToApi(res *service.JoinResult) *JoinRoomResponse {
	existing := res.ExistingUsers
	if existing == nil {
		existing = []string{}
	}
	return &JoinRoomResponse{
		Success:       true,
		Message:       "joined room",
		ExistingUsers: existing,
		UserCount:     res.Room.MemberCount(),
		AllUsers:      res.Room.MemberList(),
	}
}

func RoomLeftToApi(res *service.LeaveResult) *LeaveRoomResponse {
	return &LeaveRoomResponse{
		Success:   true,
		Message:   "left room",
		UserCount: res.UserCount,
	}
}

func RoomInfoToApi(r *domain.Room) *RoomInfoResponse {
	return &RoomInfoResponse{
		Success:     true,
		HasPassword: r.HasPassword(),
		UserCount:   r.MemberCount(),
		Users:       r.MemberList(),
	}
}

func UserToApi(u *domain.User) *UserResponse {
	return &UserResponse{
		ID:    u.ID.String(),
		Email: u.Email,
		Name:  u.Name,
	}
}
