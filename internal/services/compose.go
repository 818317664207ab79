package services

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"nekotab/pkg/config"
	"nekotab/pkg/secrets"
)

//go:embed templates/tenant-compose.yml
var defaultComposeTemplate string

// ComposeData 栈描述文件的类型化渲染参数，
// 取代把密钥直接拼进YAML字符串的做法
type ComposeData struct {
	TenantID          string
	Subdomain         string
	SecretKey         string
	DBName            string
	DBUser            string
	DBPassword        string
	DBHost            string
	DBPort            string
	Domain            string
	RegistryURL       string
	ImageTag          string
	CPULimit          string
	MemoryLimit       string
	CPUReservation    string
	MemoryReservation string
}

// RenderCompose 渲染租户栈描述文件并落盘到租户数据目录，返回文件路径。
// 文件内含数据库密码，权限0600。
func RenderCompose(cfg *config.Config, sec *secrets.TenantSecrets) (string, error) {
	text := defaultComposeTemplate
	if cfg.Docker.TemplatePath != "" {
		content, err := os.ReadFile(cfg.Docker.TemplatePath)
		if err != nil {
			return "", fmt.Errorf("读取栈模板失败: %v", err)
		}
		text = string(content)
	}

	tmpl, err := template.New("tenant-compose").Parse(text)
	if err != nil {
		return "", fmt.Errorf("解析栈模板失败: %v", err)
	}

	data := ComposeData{
		TenantID:          sec.TenantID,
		Subdomain:         sec.Subdomain,
		SecretKey:         sec.SecretKey,
		DBName:            sec.DBName,
		DBUser:            sec.DBUser,
		DBPassword:        sec.DBPassword,
		DBHost:            cfg.TenantDB.Host,
		DBPort:            cfg.TenantDB.Port,
		Domain:            cfg.Domain.Base,
		RegistryURL:       cfg.Docker.RegistryURL,
		ImageTag:          cfg.Docker.ImageTag,
		CPULimit:          cfg.Tenant.CPULimit,
		MemoryLimit:       cfg.Tenant.MemoryLimit,
		CPUReservation:    cfg.Tenant.CPUReservation,
		MemoryReservation: cfg.Tenant.MemoryReservation,
	}

	tenantDir := filepath.Join(cfg.Docker.DataRoot, sec.TenantID)
	if err := os.MkdirAll(tenantDir, 0700); err != nil {
		return "", fmt.Errorf("创建租户数据目录失败: %v", err)
	}

	composePath := filepath.Join(tenantDir, "docker-compose.yml")
	file, err := os.OpenFile(composePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := tmpl.Execute(file, data); err != nil {
		return "", fmt.Errorf("渲染栈模板失败: %v", err)
	}

	return composePath, nil
}
