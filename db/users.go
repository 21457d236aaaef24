package db

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"kecantiere/models"
)

// LoadUsers reads the users file. A missing or unparsable file yields the
// seed account list, which is also written back to disk so the next read
// finds a real file. A file that parses to an empty list yields the seeds
// without rewriting it.
func (s *Store) LoadUsers() []models.Account {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	fileData, err := os.ReadFile(s.cfg.UsersFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("INFO: Users file '%s' not found. Seeding default accounts.", s.cfg.UsersFilePath)
		} else {
			log.Printf("WARN: Failed to read users file '%s': %v. Seeding default accounts.", s.cfg.UsersFilePath, err)
		}
		if err := s.persistUsers(s.seedAccounts); err != nil {
			log.Printf("WARN: Failed to write seeded users file: %v", err)
		}
		return s.seedAccounts
	}

	var users []models.Account
	if err := json.Unmarshal(fileData, &users); err != nil {
		log.Printf("WARN: Failed to parse users file '%s': %v. Seeding default accounts.", s.cfg.UsersFilePath, err)
		if err := s.persistUsers(s.seedAccounts); err != nil {
			log.Printf("WARN: Failed to write seeded users file: %v", err)
		}
		return s.seedAccounts
	}

	if len(users) == 0 {
		return s.seedAccounts
	}
	return users
}

// SaveUsers overwrites the users file with the given account list. An empty
// list is rejected: accepting it would lock everyone out on the next login.
func (s *Store) SaveUsers(users []models.Account) error {
	if len(users) == 0 {
		return fmt.Errorf("%w: users list must not be empty", ErrValidation)
	}

	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	return s.persistUsers(users)
}

// persistUsers writes the account list atomically. Callers must hold usersMu.
func (s *Store) persistUsers(users []models.Account) error {
	jsonData, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		log.Printf("ERROR: Failed to marshal users: %v", err)
		return err
	}
	return writeFileAtomic(s.cfg.UsersFilePath, jsonData, s.cfg.EnableBackup)
}
