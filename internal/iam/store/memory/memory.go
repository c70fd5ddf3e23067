// Package memory provides in-process iam stores for tests and single-node
// runs. All methods copy models in and out so callers never share state with
// the store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"conforma/internal/iam/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

// UserStore keeps users keyed by id with a per-tenant email index.
type UserStore struct {
	mu    sync.RWMutex
	users map[id.UserID]*models.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[id.UserID]*models.User)}
}

func cloneUser(u *models.User) *models.User {
	clone := *u
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		clone.LockedUntil = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		clone.LastLoginAt = &t
	}
	return &clone
}

func (s *UserStore) findByEmailLocked(tenantID id.TenantID, email string) *models.User {
	for _, u := range s.users {
		if u.TenantID == tenantID && strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (s *UserStore) CreateIfEmailAvailable(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findByEmailLocked(user.TenantID, user.Email) != nil {
		return sentinel.ErrAlreadyUsed
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *UserStore) FindByID(_ context.Context, tenantID id.TenantID, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok || u.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *UserStore) FindByEmail(_ context.Context, tenantID id.TenantID, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u := s.findByEmailLocked(tenantID, email)
	if u == nil {
		return nil, sentinel.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *UserStore) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.User
	for _, u := range s.users {
		if u.TenantID == tenantID {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *UserStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok || existing.TenantID != user.TenantID {
		return sentinel.ErrNotFound
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

// Execute runs validate then mutate under the write lock so concurrent
// logins see a consistent failure counter.
func (s *UserStore) Execute(_ context.Context, tenantID id.TenantID, email string,
	validate func(*models.User) error, mutate func(*models.User)) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.findByEmailLocked(tenantID, email)
	if u == nil {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(u); err != nil {
		return nil, err
	}
	mutate(u)
	return cloneUser(u), nil
}

// RoleStore keeps roles and their permission grants. Grants reference the
// catalog store for code lookups, mirroring the role_permissions join table.
type RoleStore struct {
	mu          sync.RWMutex
	roles       map[id.RoleID]*models.Role
	grants      map[id.RoleID]map[id.PermissionID]struct{}
	permissions *PermissionStore
}

func NewRoleStore(permissions *PermissionStore) *RoleStore {
	return &RoleStore{
		roles:       make(map[id.RoleID]*models.Role),
		grants:      make(map[id.RoleID]map[id.PermissionID]struct{}),
		permissions: permissions,
	}
}

func (s *RoleStore) CreateIfNameAvailable(_ context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.TenantID == role.TenantID && strings.EqualFold(r.Name, role.Name) {
			return sentinel.ErrAlreadyUsed
		}
	}
	clone := *role
	s.roles[role.ID] = &clone
	return nil
}

func (s *RoleStore) FindByID(_ context.Context, tenantID id.TenantID, roleID id.RoleID) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID]
	if !ok || r.TenantID != tenantID {
		return nil, sentinel.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

func (s *RoleStore) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Role
	for _, r := range s.roles {
		if r.TenantID == tenantID {
			clone := *r
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *RoleStore) Delete(_ context.Context, tenantID id.TenantID, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID]
	if !ok || r.TenantID != tenantID {
		return sentinel.ErrNotFound
	}
	delete(s.roles, roleID)
	delete(s.grants, roleID)
	return nil
}

func (s *RoleStore) GrantPermission(_ context.Context, roleID id.RoleID, permissionID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.grants[roleID] == nil {
		s.grants[roleID] = make(map[id.PermissionID]struct{})
	}
	s.grants[roleID][permissionID] = struct{}{}
	return nil
}

func (s *RoleStore) RevokePermission(_ context.Context, roleID id.RoleID, permissionID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.grants[roleID], permissionID)
	return nil
}

func (s *RoleStore) ListPermissions(ctx context.Context, roleID id.RoleID) ([]models.Permission, error) {
	s.mu.RLock()
	ids := make([]id.PermissionID, 0, len(s.grants[roleID]))
	for pid := range s.grants[roleID] {
		ids = append(ids, pid)
	}
	s.mu.RUnlock()

	var out []models.Permission
	for _, pid := range ids {
		p, err := s.permissions.FindByID(ctx, pid)
		if err != nil {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// PermissionStore holds the global catalog keyed by code.
type PermissionStore struct {
	mu    sync.RWMutex
	byID  map[id.PermissionID]models.Permission
	codes map[string]id.PermissionID
}

func NewPermissionStore() *PermissionStore {
	return &PermissionStore{
		byID:  make(map[id.PermissionID]models.Permission),
		codes: make(map[string]id.PermissionID),
	}
}

func (s *PermissionStore) Seed(_ context.Context, permissions []models.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range permissions {
		if _, ok := s.codes[p.Code]; ok {
			continue
		}
		if p.ID.IsNil() {
			p.ID = id.NewPermissionID()
		}
		s.byID[p.ID] = p
		s.codes[p.Code] = p.ID
	}
	return nil
}

func (s *PermissionStore) FindByCode(_ context.Context, code string) (*models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pid, ok := s.codes[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	p := s.byID[pid]
	return &p, nil
}

func (s *PermissionStore) FindByID(_ context.Context, permissionID id.PermissionID) (*models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[permissionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *PermissionStore) ListAll(_ context.Context) ([]models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Permission, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// UserRoleStore keeps role assignments and resolves effective permission
// codes through the role store.
type UserRoleStore struct {
	mu          sync.RWMutex
	assignments map[uuid.UUID]*models.UserRole
	roles       *RoleStore
}

func NewUserRoleStore(roles *RoleStore) *UserRoleStore {
	return &UserRoleStore{
		assignments: make(map[uuid.UUID]*models.UserRole),
		roles:       roles,
	}
}

func assignmentKeyEqual(a, b *models.UserRole) bool {
	if a.UserID != b.UserID || a.RoleID != b.RoleID || a.ScopeType != b.ScopeType {
		return false
	}
	if (a.ScopeID == nil) != (b.ScopeID == nil) {
		return false
	}
	return a.ScopeID == nil || *a.ScopeID == *b.ScopeID
}

func (s *UserRoleStore) Assign(_ context.Context, assignment *models.UserRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.assignments {
		if assignmentKeyEqual(existing, assignment) {
			return sentinel.ErrAlreadyUsed
		}
	}
	clone := *assignment
	s.assignments[assignment.ID] = &clone
	return nil
}

func (s *UserRoleStore) Remove(_ context.Context, tenantID id.TenantID, assignmentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentID]
	if !ok || a.TenantID != tenantID {
		return sentinel.ErrNotFound
	}
	delete(s.assignments, assignmentID)
	return nil
}

func (s *UserRoleStore) ListByUser(_ context.Context, tenantID id.TenantID, userID id.UserID) ([]*models.UserRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.UserRole
	for _, a := range s.assignments {
		if a.TenantID == tenantID && a.UserID == userID {
			clone := *a
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *UserRoleStore) ResolvePermissionCodes(ctx context.Context, tenantID id.TenantID, userID id.UserID) (map[string]struct{}, error) {
	assignments, err := s.ListByUser(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	codes := make(map[string]struct{})
	for _, a := range assignments {
		perms, err := s.roles.ListPermissions(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		for _, perm := range perms {
			codes[perm.Code] = struct{}{}
		}
	}
	return codes, nil
}
