package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// DefaultEnvFile 是启动时尝试读取的 dotenv 文件。
const DefaultEnvFile = ".env"

// LoadDotEnv 将 dotenv 文件中的变量写入进程环境，已存在的变量不会被覆盖。
// 文件不存在时静默跳过。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{DefaultEnvFile}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("加载 %s 失败: %w", path, err)
		}
	}
	return nil
}
