package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nekotab/pkg/errors"

	"github.com/joho/godotenv"
)

// TenantSecrets 租户密钥记录，开通时写入一次，
// 之后由备份和下线流程重新读取（规范来源）
type TenantSecrets struct {
	TenantID   string
	Subdomain  string
	DBName     string
	DBUser     string
	DBPassword string
	SecretKey  string
}

// Store 基于文件的租户密钥记录存储，每个租户一个env文件，权限0600
type Store struct {
	dir string
}

// NewStore 创建密钥记录存储
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save 写入租户密钥记录（覆盖写，开通重试时幂等）
func (s *Store) Save(secrets *TenantSecrets) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("创建密钥目录失败: %v", err)
	}

	values := map[string]string{
		"TENANT_ID":          secrets.TenantID,
		"TENANT_SUBDOMAIN":   secrets.Subdomain,
		"TENANT_DB_NAME":     secrets.DBName,
		"TENANT_DB_USER":     secrets.DBUser,
		"TENANT_DB_PASSWORD": secrets.DBPassword,
		"TENANT_SECRET_KEY":  secrets.SecretKey,
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(values[k])
		b.WriteString("\n")
	}

	return os.WriteFile(s.path(secrets.Subdomain), []byte(b.String()), 0600)
}

// Load 按子域名读取租户密钥记录，未找到返回 ErrTenantNotFound（快速失败）
func (s *Store) Load(subdomain string) (*TenantSecrets, error) {
	values, err := godotenv.Read(s.path(subdomain))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrTenantNotFound
		}
		return nil, fmt.Errorf("读取密钥记录失败: %v", err)
	}

	secrets := &TenantSecrets{
		TenantID:   values["TENANT_ID"],
		Subdomain:  values["TENANT_SUBDOMAIN"],
		DBName:     values["TENANT_DB_NAME"],
		DBUser:     values["TENANT_DB_USER"],
		DBPassword: values["TENANT_DB_PASSWORD"],
		SecretKey:  values["TENANT_SECRET_KEY"],
	}

	if secrets.TenantID == "" || secrets.DBName == "" {
		return nil, fmt.Errorf("密钥记录不完整: %s", subdomain)
	}

	return secrets, nil
}

// Delete 删除租户密钥记录，不存在视为已删除
func (s *Store) Delete(subdomain string) error {
	err := os.Remove(s.path(subdomain))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) path(subdomain string) string {
	return filepath.Join(s.dir, subdomain+".env")
}
